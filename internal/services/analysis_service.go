package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labelens-backend/internal/models"

	"go.uber.org/zap"
)

var (
	ErrAnalysisTimedOut = errors.New("analysis timed out")
	ErrAnalysisFailed   = errors.New("analysis failed")
)

// AnalysisState is the explicit per-unit-of-work state machine. Modeling the
// transitions as data (rather than nested retry loops) keeps the "never debit
// on timeout" invariant checkable.
type AnalysisState int

const (
	StateIdle AnalysisState = iota
	StateRunning
	StateSucceeded
	StateTimedOut
	StateFailed
)

func (s AnalysisState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// transitions lists every legal edge. TimedOut -> Running is the single
// retry; a second timeout leaves TimedOut terminal.
var transitions = map[AnalysisState][]AnalysisState{
	StateIdle:     {StateRunning},
	StateRunning:  {StateSucceeded, StateTimedOut, StateFailed},
	StateTimedOut: {StateRunning},
}

func advance(from, to AnalysisState) (AnalysisState, error) {
	for _, next := range transitions[from] {
		if next == to {
			return to, nil
		}
	}
	return from, fmt.Errorf("illegal analysis transition %s -> %s", from, to)
}

// VisionResult is what a successful vision call yields: the raw analysis
// payload and the token usage that drives billing.
type VisionResult struct {
	Payload map[string]interface{}
	Usage   TokenUsage
}

// VisionClient is the out-of-scope vision dependency: opaque, possibly slow,
// possibly failing.
type VisionClient interface {
	Analyze(ctx context.Context, imageURL, prompt string) (*VisionResult, error)
}

// AnalysisOrchestrator runs one vision call per unit of work with a bounded
// timeout and a single retry, and debits quota only for work that produced a
// usable result.
type AnalysisOrchestrator struct {
	Client  VisionClient
	Timeout time.Duration
	Retries int // retries after the first timeout; 1 unless configured otherwise
}

// AnalysisOutcome is returned for succeeded work. User is the post-debit
// snapshot.
type AnalysisOutcome struct {
	State          AnalysisState
	Result         *VisionResult
	DebitedCredits int64
	User           *models.User
}

func (o *AnalysisOrchestrator) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 60 * time.Second
	}
	return o.Timeout
}

// Run drives one unit of work through the state machine.
//
// The quota pre-check below is advisory only: it rejects obviously-over-quota
// requests before money is spent on the vision call, but the binding check is
// the conditional update inside CheckedDebit, performed after the call
// completes with the succeeding attempt's real token usage. TimedOut and
// Failed terminal states never reach CheckedDebit.
func (o *AnalysisOrchestrator) Run(ctx context.Context, userID uint, imageURL, prompt, subjectLabel string) (*AnalysisOutcome, error) {
	total, used, err := QuotaSnapshot(userID)
	if err != nil {
		return nil, err
	}
	if used >= total {
		return nil, ErrQuotaExceeded
	}

	state := StateIdle
	attempts := o.Retries + 1
	if o.Retries < 0 {
		attempts = 1
	}

	var result *VisionResult
	for attempt := 1; attempt <= attempts; attempt++ {
		if state, err = advance(state, StateRunning); err != nil {
			return nil, err
		}

		result, err = o.attempt(ctx, imageURL, prompt)
		if err == nil {
			break
		}

		if errors.Is(err, context.DeadlineExceeded) {
			if state, err = advance(state, StateTimedOut); err != nil {
				return nil, err
			}
			zap.L().Warn("analysis attempt timed out",
				zap.Uint("user_id", userID),
				zap.String("subject", subjectLabel),
				zap.Int("attempt", attempt),
				zap.Duration("timeout", o.timeout()))
			if attempt < attempts {
				continue
			}
			return nil, ErrAnalysisTimedOut
		}

		if _, terr := advance(state, StateFailed); terr != nil {
			return nil, terr
		}
		zap.L().Error("analysis attempt failed",
			zap.Uint("user_id", userID),
			zap.String("subject", subjectLabel),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	if state, err = advance(state, StateSucceeded); err != nil {
		return nil, err
	}

	user, event, err := CheckedDebit(userID, DebitRequest{
		Kind:           "analyze",
		SubjectLabel:   subjectLabel,
		RequestedCount: 1,
		Usage:          &result.Usage,
	})
	if err != nil {
		return nil, err
	}

	return &AnalysisOutcome{
		State:          state,
		Result:         result,
		DebitedCredits: event.DebitedCredits,
		User:           user,
	}, nil
}

// attempt runs the vision call under a per-attempt deadline. The result
// channel is buffered: if the deadline fires first, a late completion parks
// in the buffer and is discarded, never double-applied.
func (o *AnalysisOrchestrator) attempt(parent context.Context, imageURL, prompt string) (*VisionResult, error) {
	ctx, cancel := context.WithTimeout(parent, o.timeout())
	defer cancel()

	type reply struct {
		result *VisionResult
		err    error
	}
	done := make(chan reply, 1)

	go func() {
		result, err := o.Client.Analyze(ctx, imageURL, prompt)
		done <- reply{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			// A client that honors ctx reports the deadline itself.
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, context.DeadlineExceeded
			}
			return nil, r.err
		}
		return r.result, nil
	}
}
