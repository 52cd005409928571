package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage names the step of a query run at which an error occurred. Each
// query advances Idle → Retrieving → Reranking → Assembling → Generating
// → Resolving → Done; an unrecovered error moves it to Failed instead.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageIngest     Stage = "ingest"
	StageRetrieving Stage = "retrieving"
	StageReranking  Stage = "reranking"
	StageAssembling Stage = "assembling"
	StageGenerating Stage = "generating"
	StageResolving  Stage = "resolving"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ErrTimeout marks an external call that exceeded its deadline. The
// pipeline surfaces it without retrying; repeated model calls have cost
// and quota implications, so retry policy belongs to the caller.
var ErrTimeout = errors.New("external call exceeded deadline")

// ErrSessionNotFound reports an unknown or discarded session handle.
var ErrSessionNotFound = errors.New("session not found")

// ErrChunkNotFound reports a chunk ID absent from the session's store.
var ErrChunkNotFound = errors.New("chunk not found")

// Error wraps a component failure with the stage it occurred at, so the
// caller always learns where a query died, never just that it did.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// failed tags err with its stage, mapping context deadline expiry to
// ErrTimeout on the way.
func failed(stage Stage, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return &Error{Stage: stage, Err: err}
}
