// Package store is the authoritative, file-backed repository of pipeline
// entities. Each entity type lives in its own JSON partition under
// <workspace>/.leadline/pipeline/, guarded by a cross-process file lock for
// the duration of every read-modify-write. Writers may run in independently
// scheduled processes; readers outside a transition read without the lock and
// tolerate a stale snapshot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	pipelineDir     = ".leadline/pipeline"
	defaultLockWait = 5 * time.Second
	lockRetryDelay  = 25 * time.Millisecond
)

var (
	// ErrNotFound is returned when an entity id is absent from its partition.
	ErrNotFound = errors.New("not found")
	// ErrLockTimeout is returned when a partition lock could not be acquired
	// within the bounded wait. Callers retry on the next cycle.
	ErrLockTimeout = errors.New("partition lock timeout")
)

// CorruptError marks an unparsable partition. The store fails closed: no
// write is attempted against a partition that cannot be read back, operators
// restore from the append-only event log.
type CorruptError struct {
	Partition string
	Err       error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("partition %s corrupt: %v", e.Partition, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store owns one pipeline directory.
type Store struct {
	dir      string
	LockWait time.Duration
	Now      func() time.Time
}

// EnsureWorkspace creates the pipeline directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, pipelineDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens (creating if needed) the store for a workspace.
func Open(workspace string) (*Store, error) {
	dir, err := EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, LockWait: defaultLockWait, Now: time.Now}, nil
}

// Dir returns the pipeline directory path.
func (s *Store) Dir() string { return s.dir }

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) partitionPath(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// acquire takes the exclusive cross-process lock for one partition, waiting
// at most LockWait. The returned release function must run on every exit
// path.
func (s *Store) acquire(ctx context.Context, name string) (release func(), err error) {
	fl := flock.New(filepath.Join(s.dir, name+".lock"))
	wait := s.LockWait
	if wait <= 0 {
		wait = defaultLockWait
	}
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ok, err := fl.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
		}
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
	}
	return func() { _ = fl.Unlock() }, nil
}

// readRecords loads the raw record list of a partition. A missing file is an
// empty partition; an unparsable file is a CorruptError, never silently reset.
func readRecords[T any](s *Store, name string) ([]T, error) {
	data, err := os.ReadFile(s.partitionPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, &CorruptError{Partition: name, Err: err}
	}
	return items, nil
}

// writeRecords replaces a partition atomically: marshal to a temp file in the
// same directory, sync, rename over the old file.
func writeRecords[T any](s *Store, name string, items []T) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal partition %s: %w", name, err)
	}
	path := s.partitionPath(name)
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Partition is a typed view over one entity file.
type Partition[T any] struct {
	s    *Store
	name string
	key  func(T) string
}

// NewPartition binds a partition name to its entity type and id accessor.
func NewPartition[T any](s *Store, name string, key func(T) string) Partition[T] {
	return Partition[T]{s: s, name: name, key: key}
}

// Name returns the partition name.
func (p Partition[T]) Name() string { return p.name }

// Get reads one entity without taking the lock; callers outside a transition
// tolerate a stale snapshot.
func (p Partition[T]) Get(_ context.Context, id string) (T, error) {
	var zero T
	items, err := readRecords[T](p.s, p.name)
	if err != nil {
		return zero, err
	}
	for _, it := range items {
		if p.key(it) == id {
			return it, nil
		}
	}
	return zero, ErrNotFound
}

// List reads all entities without taking the lock.
func (p Partition[T]) List(_ context.Context) ([]T, error) {
	return readRecords[T](p.s, p.name)
}

// Find returns the first entity matching the predicate.
func (p Partition[T]) Find(ctx context.Context, match func(T) bool) (T, error) {
	var zero T
	items, err := p.List(ctx)
	if err != nil {
		return zero, err
	}
	for _, it := range items {
		if match(it) {
			return it, nil
		}
	}
	return zero, ErrNotFound
}

// Upsert atomically merges one entity into the partition by id.
func (p Partition[T]) Upsert(ctx context.Context, v T) error {
	release, err := p.s.acquire(ctx, p.name)
	if err != nil {
		return err
	}
	defer release()
	items, err := readRecords[T](p.s, p.name)
	if err != nil {
		return err
	}
	id := p.key(v)
	replaced := false
	for i, it := range items {
		if p.key(it) == id {
			items[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, v)
	}
	return writeRecords(p.s, p.name, items)
}

// Update applies fn to the entity under the partition lock. The whole
// read-modify-write serializes against concurrent writers, so two updates to
// the same id compose instead of clobbering each other.
func (p Partition[T]) Update(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var zero T
	release, err := p.s.acquire(ctx, p.name)
	if err != nil {
		return zero, err
	}
	defer release()
	items, err := readRecords[T](p.s, p.name)
	if err != nil {
		return zero, err
	}
	for i := range items {
		if p.key(items[i]) == id {
			if err := fn(&items[i]); err != nil {
				return zero, err
			}
			if err := writeRecords(p.s, p.name, items); err != nil {
				return zero, err
			}
			return items[i], nil
		}
	}
	return zero, ErrNotFound
}

// Merge looks up id under the lock and lets fn produce the stored value from
// whatever is already there. fn receives nil when the id is absent.
func (p Partition[T]) Merge(ctx context.Context, id string, fn func(existing *T) (T, error)) (T, error) {
	return p.MergeBy(ctx, func(it T) bool { return p.key(it) == id }, fn)
}

// MergeBy is Merge with a predicate lookup instead of an id. The coordinator
// uses it to dedup-merge candidates by dedup key: the search and the write
// happen under the same lock, so two concurrent cycles observing the same
// signal cannot both insert it.
func (p Partition[T]) MergeBy(ctx context.Context, match func(T) bool, fn func(existing *T) (T, error)) (T, error) {
	var zero T
	release, err := p.s.acquire(ctx, p.name)
	if err != nil {
		return zero, err
	}
	defer release()
	items, err := readRecords[T](p.s, p.name)
	if err != nil {
		return zero, err
	}
	idx := -1
	var existing *T
	for i := range items {
		if match(items[i]) {
			idx = i
			existing = &items[i]
			break
		}
	}
	v, err := fn(existing)
	if err != nil {
		return zero, err
	}
	if idx >= 0 {
		items[idx] = v
	} else {
		items = append(items, v)
	}
	if err := writeRecords(p.s, p.name, items); err != nil {
		return zero, err
	}
	return v, nil
}
