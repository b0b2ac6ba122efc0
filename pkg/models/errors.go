package models

import (
	"errors"
)

// Error taxonomy shared by the validator, engine and dispatcher.
var (
	// ErrGraphInvalid blocks activation: the graph breaks a structural rule.
	ErrGraphInvalid = errors.New("graph invalid")

	// ErrConfigInvalid indicates a node configuration that does not match its type schema.
	ErrConfigInvalid = errors.New("config invalid")

	// ErrUnhandledBranch indicates an observed value with no configured output and no no_match edge.
	ErrUnhandledBranch = errors.New("unhandled branch")

	// ErrSideEffectFailed indicates a side effect failed permanently or exhausted its retries.
	ErrSideEffectFailed = errors.New("side effect failed")

	// ErrDuplicateTrigger indicates a trigger for a contact that already runs the flow. Benign.
	ErrDuplicateTrigger = errors.New("duplicate trigger")

	// ErrStorageConflict indicates a concurrent write won. Retryable.
	ErrStorageConflict = errors.New("storage conflict")

	// ErrStepLimitExceeded indicates a single run evaluated more nodes than allowed.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	ErrFlowNotFound      = errors.New("flow not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrContactNotFound   = errors.New("contact not found")
	ErrFlowNotActive     = errors.New("flow not active")
	ErrExecutionFinished = errors.New("execution already finished")
)

// ErrorKind is the persisted name of an error on a failed execution.
type ErrorKind string

const (
	ErrorKindGraphInvalid      ErrorKind = "GraphInvalid"
	ErrorKindConfigInvalid     ErrorKind = "ConfigInvalid"
	ErrorKindUnhandledBranch   ErrorKind = "UnhandledBranch"
	ErrorKindSideEffectFailed  ErrorKind = "SideEffectFailed"
	ErrorKindDuplicateTrigger  ErrorKind = "DuplicateTrigger"
	ErrorKindStorageConflict   ErrorKind = "StorageConflict"
	ErrorKindStepLimitExceeded ErrorKind = "StepLimitExceeded"
	ErrorKindInternal          ErrorKind = "Internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnhandledBranch, ErrorKindUnhandledBranch},
	{ErrSideEffectFailed, ErrorKindSideEffectFailed},
	{ErrConfigInvalid, ErrorKindConfigInvalid},
	{ErrGraphInvalid, ErrorKindGraphInvalid},
	{ErrDuplicateTrigger, ErrorKindDuplicateTrigger},
	{ErrStorageConflict, ErrorKindStorageConflict},
	{ErrStepLimitExceeded, ErrorKindStepLimitExceeded},
}

// KindOf classifies err into the taxonomy.
func KindOf(err error) ErrorKind {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}

	return ErrorKindInternal
}
