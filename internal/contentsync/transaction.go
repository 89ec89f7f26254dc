// Package contentsync brackets a frontend observation between a CMS write and
// a guaranteed revert of that write.
package contentsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/models"
)

// PageName labels content sync results
const PageName = "Content Sync"

var (
	// ErrMissingPriorValue is returned when a transaction would mutate without a value to restore
	ErrMissingPriorValue = errors.New("prior value must be known before mutation")

	// ErrMutationRejected wraps a content store refusing a write
	ErrMutationRejected = errors.New("content store rejected mutation")

	// ErrAlreadyRun is returned when Run is called on a transaction that has left Pending
	ErrAlreadyRun = errors.New("transaction has already run")
)

// Actions are the three side effects of a transaction. Mutate and Revert write
// to the content store, Observe waits for the frontend to show value.
type Actions struct {
	Mutate  func(ctx context.Context, value string) error
	Observe func(ctx context.Context, value string) error
	Revert  func(ctx context.Context, prior string) error
}

// Transaction is one write→observe→revert cycle against a single content field
type Transaction struct {
	TargetID   string
	Field      string
	PriorValue string
	NewValue   string
	Route      string

	State   models.TransactionState
	History []models.StateTransition

	revertTimeout time.Duration
	logger        arbor.ILogger
	now           func() time.Time
}

// TxResult is what a completed Run reports
type TxResult struct {
	State   models.TransactionState
	History []models.StateTransition
	Results []models.CheckResult
}

// NewValue builds a unique test value from prefix and the current time
func NewValue(prefix string, now time.Time) string {
	return fmt.Sprintf("%s %d", prefix, now.UnixMilli())
}

// NewTransaction creates a Pending transaction
func NewTransaction(targetID, field, prior, value string, revertTimeout time.Duration, logger arbor.ILogger) *Transaction {
	if revertTimeout <= 0 {
		revertTimeout = 30 * time.Second
	}
	return &Transaction{
		TargetID:      targetID,
		Field:         field,
		PriorValue:    prior,
		NewValue:      value,
		State:         models.TxPending,
		revertTimeout: revertTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

func (t *Transaction) transition(to models.TransactionState) {
	t.History = append(t.History, models.StateTransition{From: t.State, To: to, At: t.now()})
	t.logger.Debug().
		Str("target_id", t.TargetID).
		Str("from", string(t.State)).
		Str("to", string(to)).
		Msg("Content sync state change")
	t.State = to
}

func (t *Transaction) result(r models.CheckResult) models.CheckResult {
	if t.Route != "" {
		r = r.WithRoute(t.Route)
	}
	return r
}

// Run executes the transaction. Once Mutate succeeds, Revert is called exactly
// once: after Observe passes, fails, times out, or panics. A panic is re-raised
// after the revert. Revert runs on a context detached from ctx's cancellation.
func (t *Transaction) Run(ctx context.Context, actions Actions) (result *TxResult, err error) {
	if t.State != models.TxPending {
		return nil, ErrAlreadyRun
	}
	if t.PriorValue == "" {
		return nil, ErrMissingPriorValue
	}
	if actions.Mutate == nil || actions.Observe == nil || actions.Revert == nil {
		return nil, fmt.Errorf("mutate, observe and revert actions are all required")
	}

	result = &TxResult{}
	defer func() {
		result.State = t.State
		result.History = append([]models.StateTransition(nil), t.History...)
	}()

	start := time.Now()
	if err := actions.Mutate(ctx, t.NewValue); err != nil {
		t.logger.Warn().Err(err).Str("target_id", t.TargetID).Msg("Content mutation failed, nothing to revert")
		result.Results = append(result.Results, t.result(models.Fail(PageName, models.CheckSyncMutate, classify(err),
			fmt.Sprintf("%s of %s set to %q", t.Field, t.TargetID, t.NewValue), err.Error())).WithDuration(time.Since(start)))
		return result, nil
	}
	t.transition(models.TxMutated)
	result.Results = append(result.Results, t.result(models.Pass(PageName, models.CheckSyncMutate,
		fmt.Sprintf("%s set to %q", t.Field, t.NewValue))).WithDuration(time.Since(start)))

	defer func() {
		recovered := recover()
		if recovered != nil {
			t.logger.Error().
				Str("target_id", t.TargetID).
				Str("panic", fmt.Sprint(recovered)).
				Msg("Panic during content sync, reverting before re-raising")
		}

		result.Results = append(result.Results, t.revert(ctx, actions.Revert))

		if recovered != nil {
			panic(recovered)
		}
	}()

	start = time.Now()
	expectation := fmt.Sprintf("frontend shows %q", t.NewValue)
	if err := actions.Observe(ctx, t.NewValue); err != nil {
		t.transition(models.TxObserveFailed)
		result.Results = append(result.Results, t.result(models.Fail(PageName, models.CheckSyncObserve, classify(err),
			expectation, err.Error())).WithDuration(time.Since(start)))
		return result, nil
	}
	t.transition(models.TxObserved)
	result.Results = append(result.Results, t.result(models.Pass(PageName, models.CheckSyncObserve,
		fmt.Sprintf("frontend showed %q", t.NewValue))).WithDuration(time.Since(start)))

	return result, nil
}

// revert restores the prior value under its own timeout
func (t *Transaction) revert(ctx context.Context, revert func(context.Context, string) error) models.CheckResult {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.revertTimeout)
	defer cancel()

	start := time.Now()
	expectation := fmt.Sprintf("%s of %s restored to %q", t.Field, t.TargetID, t.PriorValue)

	if err := revert(revertCtx, t.PriorValue); err != nil {
		t.transition(models.TxRevertFailed)
		t.logger.Error().
			Err(err).
			Str("target_id", t.TargetID).
			Str("field", t.Field).
			Str("left_as", t.NewValue).
			Str("expected", t.PriorValue).
			Msg("Content revert failed, CMS content must be restored manually")
		return t.result(models.Fail(PageName, models.CheckSyncRevert, models.FailureTransactionIntegrity,
			expectation, err.Error())).WithDuration(time.Since(start))
	}

	t.transition(models.TxReverted)
	t.logger.Info().
		Str("target_id", t.TargetID).
		Str("value", t.PriorValue).
		Msg("Content reverted")
	return t.result(models.Pass(PageName, models.CheckSyncRevert,
		fmt.Sprintf("%s restored to %q", t.Field, t.PriorValue))).WithDuration(time.Since(start))
}

func classify(err error) models.FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.FailureTimeout
	case errors.Is(err, ErrObservationTimeout):
		return models.FailureTimeout
	case errors.Is(err, ErrMutationRejected):
		return models.FailureAssertion
	default:
		return models.FailureTransport
	}
}
