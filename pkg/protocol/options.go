package protocol

import (
	"errors"
	"fmt"
	"slices"
)

var (
	errDuplicateOption = errors.New("duplicate option handle")
	errReservedHandle  = errors.New("option handle uses a reserved name")
)

// Option is one configured button. Its handle is ID when set, else Text.
type Option struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"         validate:"required"`
}

func (o Option) Handle() string {
	if o.ID != "" {
		return o.ID
	}

	return o.Text
}

// OptionHandles returns one handle per option followed by no_match.
func OptionHandles(options []Option) []string {
	handles := make([]string, 0, len(options)+1)

	for _, o := range options {
		handles = append(handles, o.Handle())
	}

	return append(handles, HandleNoMatch)
}

// RequiredOptionHandles returns one handle per option. no_match stays optional.
func RequiredOptionHandles(options []Option) []string {
	handles := make([]string, 0, len(options))

	for _, o := range options {
		handles = append(handles, o.Handle())
	}

	return handles
}

func ValidateOptions(options []Option) error {
	seen := make(map[string]struct{}, len(options))

	for _, o := range options {
		handle := o.Handle()

		if slices.Contains([]string{HandleNoMatch, HandleDefault}, handle) {
			return fmt.Errorf("%w: %q", errReservedHandle, handle)
		}

		if _, ok := seen[handle]; ok {
			return fmt.Errorf("%w: %q", errDuplicateOption, handle)
		}

		seen[handle] = struct{}{}
	}

	return nil
}

// MatchOption compares observed with the option texts, exactly and case
// sensitively, in configured order. The first match wins; no match yields
// HandleNoMatch.
func MatchOption(options []Option, observed string) string {
	for _, o := range options {
		if o.Text == observed {
			return o.Handle()
		}
	}

	return HandleNoMatch
}
