// Package cluster emulates, in-process, the partitioned-collection
// abstraction spec.md §2 describes as the engine's only parallelism
// primitive: "The engine does NOT assume threads; all parallelism is
// expressed through this collection abstraction." Dataset[T] holds one
// slice of T ("a partition") per goroutine-scheduled unit of work; every
// primitive below (Map, ZipPartitions, ReduceByKey, AggregateByKey,
// Foreach) runs one goroutine per partition inside an errgroup.Group, so a
// single partition's failure aborts the whole stage (spec.md §7:
// "intermediate failures abort the current fit").
//
// This mirrors the concurrency shape of macawi-ai-Strigoi's
// modules/probe/west.go, which runs a bounded set of steps concurrently
// under errgroup.WithContext and fails fast on the first error — the same
// shape this package needs for every histogram pass and sampling pass.
package cluster

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// StorageLevel mirrors spec.md §5's three named persistence levels. NONE
// is intentionally absent: spec.md states it is invalid everywhere.
type StorageLevel int

const (
	// MemoryAndDisk is StorageLevel1: per-iteration sampled data.
	MemoryAndDisk StorageLevel = iota
	// MemoryAndDiskSer is StorageLevel2: raw predictions.
	MemoryAndDiskSer
	// DiskOnly is StorageLevel3: test-side raw predictions.
	DiskOnly
)

// Dataset is a partitioned, immutable collection of T, the unit the engine
// schedules work over (spec.md §2).
type Dataset[T any] struct {
	Partitions [][]T
	level      StorageLevel
	persisted  bool
}

// New wraps pre-partitioned data.
func New[T any](partitions [][]T) *Dataset[T] {
	return &Dataset[T]{Partitions: partitions}
}

// FromSlice splits a flat slice into n roughly-equal partitions, the way a
// host executor would when materializing discretized training blocks.
func FromSlice[T any](data []T, n int) *Dataset[T] {
	if n <= 0 {
		n = 1
	}
	parts := make([][]T, n)
	per := (len(data) + n - 1) / n
	if per == 0 {
		per = 1
	}
	for i := 0; i < n; i++ {
		start := i * per
		if start > len(data) {
			start = len(data)
		}
		end := start + per
		if end > len(data) {
			end = len(data)
		}
		parts[i] = data[start:end]
	}
	return &Dataset[T]{Partitions: parts}
}

// NumPartitions returns the partition count.
func (d *Dataset[T]) NumPartitions() int { return len(d.Partitions) }

// Count returns the total number of elements across all partitions.
func (d *Dataset[T]) Count() int {
	n := 0
	for _, p := range d.Partitions {
		n += len(p)
	}
	return n
}

// Collect flattens all partitions into one slice (a suspension point per
// spec.md §5 — the host executor would ship all partitions back to the
// driver here).
func (d *Dataset[T]) Collect() []T {
	out := make([]T, 0, d.Count())
	for _, p := range d.Partitions {
		out = append(out, p...)
	}
	return out
}

// Persist marks the dataset for the given storage level. In this
// in-process emulation there is no separate storage tier to move data
// into; Persist exists so callers can express intent (and so the
// checkpoint package can distinguish "has been persisted" datasets) the
// same way the source's RDD.persist(level) does.
func (d *Dataset[T]) Persist(level StorageLevel) *Dataset[T] {
	d.level = level
	d.persisted = true
	return d
}

// Unpersist releases the persistence marker. Safe to call on a dataset
// that was never persisted.
func (d *Dataset[T]) Unpersist() { d.persisted = false }

// Map applies fn to every element of every partition concurrently, one
// goroutine per partition, and returns a new Dataset with the same
// partitioning (spec.md §2 "map ... primitives").
func Map[T, U any](ctx context.Context, d *Dataset[T], fn func(T) U) (*Dataset[U], error) {
	out := make([][]U, len(d.Partitions))
	g, _ := errgroup.WithContext(ctx)
	for i, part := range d.Partitions {
		i, part := i, part
		g.Go(func() error {
			mapped := make([]U, len(part))
			for j, v := range part {
				mapped[j] = fn(v)
			}
			out[i] = mapped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(out), nil
}

// MapPartitionsErr applies fn to each partition independently (one
// goroutine per partition under errgroup), allowing per-partition errors
// to abort the whole stage — the primitive every histogram/sampling pass
// in this engine is built from.
func MapPartitionsErr[T, U any](ctx context.Context, d *Dataset[T], fn func(partitionIndex int, part []T) ([]U, error)) (*Dataset[U], error) {
	out := make([][]U, len(d.Partitions))
	g, _ := errgroup.WithContext(ctx)
	for i, part := range d.Partitions {
		i, part := i, part
		g.Go(func() error {
			mapped, err := fn(i, part)
			if err != nil {
				return err
			}
			out[i] = mapped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(out), nil
}

// ZipPartitions runs fn over corresponding partitions of two datasets with
// matching partition counts (spec.md §5 "zipPartitions" is a named
// suspension point — used when node-id blocks must be walked alongside
// their parallel data blocks).
func ZipPartitions[A, B, U any](ctx context.Context, a *Dataset[A], b *Dataset[B], fn func(as []A, bs []B) ([]U, error)) (*Dataset[U], error) {
	if len(a.Partitions) != len(b.Partitions) {
		panic("cluster: ZipPartitions requires equal partition counts")
	}
	out := make([][]U, len(a.Partitions))
	g, _ := errgroup.WithContext(ctx)
	for i := range a.Partitions {
		i := i
		g.Go(func() error {
			res, err := fn(a.Partitions[i], b.Partitions[i])
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(out), nil
}

// KV is a key-value pair, the shape every reduceByKey/aggregateByKey
// primitive below operates on.
type KV[K comparable, V any] struct {
	Key K
	Val V
}

// ReduceByKey locally combines each partition's values per key, then
// merges the partial maps with a final reduce pass (the shuffle step of a
// real cluster is the local-combine + merge split here). combine must be
// associative and commutative (spec.md §5 "Ordering guarantees").
func ReduceByKey[K comparable, V any](ctx context.Context, d *Dataset[KV[K, V]], combine func(a, b V) V) (map[K]V, error) {
	partial := make([]map[K]V, len(d.Partitions))
	g, _ := errgroup.WithContext(ctx)
	for i, part := range d.Partitions {
		i, part := i, part
		g.Go(func() error {
			m := make(map[K]V, len(part))
			for _, kv := range part {
				if cur, ok := m[kv.Key]; ok {
					m[kv.Key] = combine(cur, kv.Val)
				} else {
					m[kv.Key] = kv.Val
				}
			}
			partial[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	final := make(map[K]V)
	for _, m := range partial {
		for k, v := range m {
			if cur, ok := final[k]; ok {
				final[k] = combine(cur, v)
			} else {
				final[k] = v
			}
		}
	}
	return final, nil
}

// AggregateByKey is ReduceByKey generalized with a distinct zero value and
// a (possibly asymmetric) seqOp for folding a V into an accumulator A, plus
// a combOp to merge two accumulators (associative/commutative, spec.md
// §5). This is the primitive the histogram local-build step uses: seqOp
// folds one row's (bin,grad,hess) into a per-(t,n,c) histogram
// accumulator, combOp merges accumulators across partitions.
func AggregateByKey[K comparable, V, A any](ctx context.Context, d *Dataset[KV[K, V]], zero func() A, seqOp func(acc A, v V) A, combOp func(a, b A) A) (map[K]A, error) {
	partial := make([]map[K]A, len(d.Partitions))
	g, _ := errgroup.WithContext(ctx)
	for i, part := range d.Partitions {
		i, part := i, part
		g.Go(func() error {
			m := make(map[K]A)
			for _, kv := range part {
				acc, ok := m[kv.Key]
				if !ok {
					acc = zero()
				}
				m[kv.Key] = seqOp(acc, kv.Val)
			}
			partial[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	final := make(map[K]A)
	for _, m := range partial {
		for k, v := range m {
			if cur, ok := final[k]; ok {
				final[k] = combOp(cur, v)
			} else {
				final[k] = v
			}
		}
	}
	return final, nil
}

// Foreach runs fn over every partition concurrently for side effects only
// (e.g. checkpoint writes), propagating the first error.
func Foreach[T any](ctx context.Context, d *Dataset[T], fn func(part []T) error) error {
	g, _ := errgroup.WithContext(ctx)
	for _, part := range d.Partitions {
		part := part
		g.Go(func() error { return fn(part) })
	}
	return g.Wait()
}

// Broadcast models spec.md §5's read-only broadcast handle: a value made
// available to every partition's goroutine without copying it per
// partition. In-process this is simply a pointer, but it is wrapped in its
// own type so callers register/release it through ResourceCleaner the way
// spec.md requires ("every per-iteration read-only datum ... goes into a
// registry").
type Broadcast[T any] struct {
	Value T
}

// NewBroadcast wraps a value for broadcast.
func NewBroadcast[T any](v T) *Broadcast[T] { return &Broadcast[T]{Value: v} }
