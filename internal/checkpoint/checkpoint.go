// Package checkpoint implements spec.md §4.8's Checkpointer (periodic
// materialization of large per-iteration intermediates, with oldest-
// eviction once more than k are retained) and §5/§9's ResourceCleaner (a
// scoped resource-acquisition idiom releasing every registered broadcast/
// persist handle at iteration end on any exit path).
//
// The teacher has no analogous long-running component — config.go and
// gboost.go are single-shot, in-memory — so both types here are new,
// built in the teacher's small-struct-plus-methods style.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahmedaabouzied/gbdt/internal/cluster"
)

// Checkpointer holds the last `keep` materialized datasets of one role
// (e.g. raw predictions, or subtract-strategy parent histograms) and
// periodically writes the newest to stable storage (spec.md §4.8).
type Checkpointer[T any] struct {
	mu       sync.Mutex
	dir      string // "" disables on-disk writes; bookkeeping-only
	keep     int
	interval int // spec.md §6 checkpointInterval; <=0 disables writes
	level    cluster.StorageLevel
	history  []checkpointEntry[T]
	seq      int
}

type checkpointEntry[T any] struct {
	ds   *cluster.Dataset[T]
	path string
}

// New constructs a Checkpointer. dir == "" keeps Update's persist/evict
// bookkeeping (and the Dataset.Persist/Unpersist markers) without ever
// touching disk, useful for roles the caller does not want checkpointed.
func New[T any](dir string, keep, interval int, level cluster.StorageLevel) *Checkpointer[T] {
	if keep < 1 {
		keep = 1
	}
	return &Checkpointer[T]{dir: dir, keep: keep, interval: interval, level: level}
}

// Update implements spec.md §4.8: "on update(newDs) if iteration is a
// multiple of the interval, persist the new dataset to stable storage and
// unpersist the oldest." A checkpoint write failure is fatal (spec.md §7
// "Resource: checkpoint write failure is fatal").
func (c *Checkpointer[T]) Update(iteration int, ds *cluster.Dataset[T]) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ds.Persist(c.level)
	entry := checkpointEntry[T]{ds: ds}
	if c.dir != "" && c.interval > 0 && iteration%c.interval == 0 {
		path, err := c.writeToDisk(iteration, ds)
		if err != nil {
			return fmt.Errorf("checkpoint: write failed at iteration %d: %w", iteration, err)
		}
		entry.path = path
	}
	c.history = append(c.history, entry)

	if len(c.history) > c.keep {
		oldest := c.history[0]
		oldest.ds.Unpersist()
		if oldest.path != "" {
			os.Remove(oldest.path)
		}
		c.history = c.history[1:]
	}
	return nil
}

func (c *Checkpointer[T]) writeToDisk(iteration int, ds *cluster.Dataset[T]) (string, error) {
	c.seq++
	path := filepath.Join(c.dir, fmt.Sprintf("checkpoint-%d-%d.gob", iteration, c.seq))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(ds.Partitions); err != nil {
		return "", err
	}
	return path, nil
}

// Clear implements spec.md §4.8's "clear(blocking) drops all." In
// blocking mode, a disk-removal failure propagates; in non-blocking mode
// it is swallowed (spec.md §7 "broadcast/persist cleanup errors are
// logged and swallowed in clear(blocking=false)").
func (c *Checkpointer[T]) Clear(blocking bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.history {
		e.ds.Unpersist()
		if e.path == "" {
			continue
		}
		if err := os.Remove(e.path); err != nil && blocking {
			return err
		}
	}
	c.history = nil
	return nil
}

// ResourceCleaner is the registry every per-iteration broadcast/selector
// handle goes into (spec.md §9 "Broadcast + cleaner"). Release runs
// registered cleanups in LIFO order, mirroring a scoped defer stack.
type ResourceCleaner struct {
	mu       sync.Mutex
	cleanups []func() error
}

// NewResourceCleaner returns an empty cleaner.
func NewResourceCleaner() *ResourceCleaner { return &ResourceCleaner{} }

// Register adds a cleanup to run on Release.
func (r *ResourceCleaner) Register(cleanup func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups = append(r.cleanups, cleanup)
}

// Release runs every registered cleanup, most-recently-registered first.
// In blocking mode the first error aborts and is returned immediately,
// leaving any remaining cleanups unrun. In non-blocking mode every
// cleanup runs regardless of earlier failures, and all errors are passed
// to onError (which may be nil) rather than returned (spec.md §7).
func (r *ResourceCleaner) Release(blocking bool, onError func(error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			if blocking {
				r.cleanups = nil
				return err
			}
			if onError != nil {
				onError(err)
			}
		}
	}
	r.cleanups = nil
	return nil
}
