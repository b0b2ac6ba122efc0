// Package file provides file-based persistence for single-process deployments
// and local development. Every record is a JSON document under the root
// directory.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/chatflow/pkg/persistence"
)

const (
	flowsDir      = "flows"
	executionsDir = "executions"
	logsDir       = "logs"
	schedulesDir  = "schedules"
	contactsDir   = "contacts"
)

// store serializes every read-modify-write of the file tree.
type store struct {
	root string
	mu   sync.Mutex
}

func (s *store) path(dir, id string) string {
	return filepath.Join(s.root, dir, id+".json")
}

// read decodes the document into v and reports whether it exists.
func (s *store) read(dir, id string, v any) (bool, error) {
	data, err := os.ReadFile(s.path(dir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// write replaces the document atomically through a rename.
func (s *store) write(dir, id string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	target := s.path(dir, id)

	err = os.MkdirAll(filepath.Dir(target), 0o750)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp.Name(), target)
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s/%s: %w", dir, id, err)
	}

	return nil
}

func (s *store) remove(dir, id string) (bool, error) {
	err := os.Remove(s.path(dir, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to remove %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// ids lists the document ids stored in dir.
func (s *store) ids(dir string) ([]string, error) {
	matches, err := fs.Glob(os.DirFS(s.root), dir+"/*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(match), ".json"))
	}

	return ids, nil
}

// each decodes every document of dir and calls fn with it.
func each[T any](s *store, dir string, fn func(*T) error) error {
	ids, err := s.ids(dir)
	if err != nil {
		return err
	}

	for _, id := range ids {
		v := new(T)

		found, err := s.read(dir, id, v)
		if err != nil {
			return err
		}

		if !found {
			continue
		}

		err = fn(v)
		if err != nil {
			return err
		}
	}

	return nil
}

// Persistence implements persistence.Persistence using the file system.
type Persistence struct {
	store *store

	flows      *FlowRepository
	executions *ExecutionRepository
	logs       *LogRepository
	schedules  *ScheduleRepository
	contacts   *ContactRepository
}

// NewPersistence creates a file persistence rooted at root. A file:// prefix is accepted.
func NewPersistence(root string) *Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:      s,
		flows:      &FlowRepository{store: s},
		executions: &ExecutionRepository{store: s},
		logs:       &LogRepository{store: s},
		schedules:  &ScheduleRepository{store: s},
		contacts:   &ContactRepository{store: s},
	}
}

var _ persistence.Persistence = (*Persistence)(nil)

func (p *Persistence) FlowRepository() persistence.FlowRepository {
	return p.flows
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executions
}

func (p *Persistence) LogRepository() persistence.LogRepository {
	return p.logs
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.schedules
}

func (p *Persistence) ContactRepository() persistence.ContactRepository {
	return p.contacts
}

// HealthCheck verifies the root directory is usable.
func (p *Persistence) HealthCheck(_ context.Context) error {
	err := os.MkdirAll(p.store.root, 0o750)
	if err != nil {
		return fmt.Errorf("file persistence root unavailable: %w", err)
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
