package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// OperationCache de-duplicates in-flight operations by key: the first caller
// starts the operation, later callers for the same key share its result.
// Entries are dropped as soon as the operation completes; completed results
// are the caller's to store.
type OperationCache[T any] struct {
	group    singleflight.Group
	inFlight atomic.Int64
}

// NewOperationCache creates an empty operation cache.
func NewOperationCache[T any]() *OperationCache[T] {
	return &OperationCache[T]{}
}

// GetOrStart returns the result of the in-flight operation for key, starting
// operation when none is running. The operation runs detached from the
// cancellation of the caller that started it; every caller, the starter
// included, returns ctx.Err() when its own ctx ends first. A panicking
// operation is reported to all callers as an error.
func (oc *OperationCache[T]) GetOrStart(ctx context.Context, key string, operation func(context.Context) (T, error)) (T, error) {
	detached := context.WithoutCancel(ctx)
	ch := oc.group.DoChan(key, func() (result any, err error) {
		oc.inFlight.Add(1)
		defer oc.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("operation %s panicked: %v", key, r)
			}
		}()
		return operation(detached)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// InFlight returns the number of running operations.
func (oc *OperationCache[T]) InFlight() int {
	return int(oc.inFlight.Load())
}
