package contentsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/siteverify/internal/models"
	"pgregory.net/rapid"
)

// memoryStore is an in-memory content field with scripted failures
type memoryStore struct {
	value       string
	failMutate  bool
	failRevert  bool
	observeErr  error
	mutateCalls int
	revertCalls int
}

func (m *memoryStore) actions() Actions {
	return Actions{
		Mutate: func(ctx context.Context, value string) error {
			m.mutateCalls++
			if m.failMutate {
				return ErrMutationRejected
			}
			m.value = value
			return nil
		},
		Observe: func(ctx context.Context, value string) error {
			return m.observeErr
		},
		Revert: func(ctx context.Context, prior string) error {
			m.revertCalls++
			if m.failRevert {
				return errors.New("connection reset")
			}
			m.value = prior
			return nil
		},
	}
}

func newTx(prior string) *Transaction {
	return NewTransaction("1", "title", prior, "Automated Test Title 1700000000000", time.Second, arbor.NewLogger())
}

func kinds(results []models.CheckResult) []models.CheckKind {
	out := make([]models.CheckKind, 0, len(results))
	for _, r := range results {
		out = append(out, r.Kind)
	}
	return out
}

func TestTransaction_HappyPath(t *testing.T) {
	store := &memoryStore{value: "Original Heading"}
	tx := newTx("Original Heading")

	result, err := tx.Run(context.Background(), store.actions())
	require.NoError(t, err)

	assert.Equal(t, models.TxReverted, result.State)
	assert.Equal(t, "Original Heading", store.value)
	assert.Equal(t, 1, store.revertCalls)
	assert.Equal(t, []models.CheckKind{models.CheckSyncMutate, models.CheckSyncObserve, models.CheckSyncRevert}, kinds(result.Results))
	for _, r := range result.Results {
		assert.True(t, r.Passed(), r.Detail)
	}

	var states []models.TransactionState
	for _, h := range result.History {
		states = append(states, h.To)
	}
	assert.Equal(t, []models.TransactionState{models.TxMutated, models.TxObserved, models.TxReverted}, states)
}

func TestTransaction_MutateFailureSkipsObserveAndRevert(t *testing.T) {
	store := &memoryStore{value: "Original Heading", failMutate: true}
	tx := newTx("Original Heading")

	result, err := tx.Run(context.Background(), store.actions())
	require.NoError(t, err)

	assert.Equal(t, models.TxPending, result.State)
	assert.Empty(t, result.History)
	assert.Equal(t, 0, store.revertCalls)
	assert.Equal(t, "Original Heading", store.value)
	require.Len(t, result.Results, 1)
	assert.Equal(t, models.CheckSyncMutate, result.Results[0].Kind)
	assert.True(t, result.Results[0].Failed())
}

func TestTransaction_ObserveTimeoutStillReverts(t *testing.T) {
	store := &memoryStore{value: "Original Heading", observeErr: ErrObservationTimeout}
	tx := newTx("Original Heading")

	result, err := tx.Run(context.Background(), store.actions())
	require.NoError(t, err)

	assert.Equal(t, models.TxReverted, result.State)
	assert.Equal(t, "Original Heading", store.value)
	assert.Equal(t, 1, store.revertCalls)

	require.Len(t, result.Results, 3)
	assert.Equal(t, models.FailureTimeout, result.Results[1].FailureKind)
	assert.True(t, result.Results[2].Passed())
}

func TestTransaction_RevertFailureIsIntegrityFailure(t *testing.T) {
	store := &memoryStore{value: "Original Heading", observeErr: ErrObservationTimeout, failRevert: true}
	tx := newTx("Original Heading")

	result, err := tx.Run(context.Background(), store.actions())
	require.NoError(t, err)

	assert.Equal(t, models.TxRevertFailed, result.State)
	require.Len(t, result.Results, 3)

	observe := result.Results[1]
	assert.True(t, observe.Failed(), "revert failure must not mask the observe result")
	assert.Equal(t, models.FailureTimeout, observe.FailureKind)

	revert := result.Results[2]
	assert.True(t, revert.Failed())
	assert.Equal(t, models.FailureTransactionIntegrity, revert.FailureKind)
	assert.Equal(t, models.SeverityHigh, revert.Severity)
}

func TestTransaction_PanicInObserveReverts(t *testing.T) {
	store := &memoryStore{value: "Original Heading"}
	actions := store.actions()
	actions.Observe = func(ctx context.Context, value string) error { panic("page crashed") }

	tx := newTx("Original Heading")
	assert.PanicsWithValue(t, "page crashed", func() {
		_, _ = tx.Run(context.Background(), actions)
	})
	assert.Equal(t, 1, store.revertCalls)
	assert.Equal(t, "Original Heading", store.value)
	assert.Equal(t, models.TxReverted, tx.State)
}

func TestTransaction_CancelledContextStillReverts(t *testing.T) {
	store := &memoryStore{value: "Original Heading"}
	actions := store.actions()

	ctx, cancel := context.WithCancel(context.Background())
	actions.Observe = func(ctx context.Context, value string) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}
	revert := actions.Revert
	actions.Revert = func(ctx context.Context, prior string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return revert(ctx, prior)
	}

	result, err := newTx("Original Heading").Run(ctx, actions)
	require.NoError(t, err)
	assert.Equal(t, models.TxReverted, result.State)
	assert.Equal(t, "Original Heading", store.value)
}

func TestTransaction_Preconditions(t *testing.T) {
	store := &memoryStore{}

	_, err := newTx("").Run(context.Background(), store.actions())
	assert.ErrorIs(t, err, ErrMissingPriorValue)
	assert.Equal(t, 0, store.mutateCalls)

	tx := newTx("Original Heading")
	_, err = tx.Run(context.Background(), store.actions())
	require.NoError(t, err)
	_, err = tx.Run(context.Background(), store.actions())
	assert.ErrorIs(t, err, ErrAlreadyRun)
	assert.Equal(t, 1, store.revertCalls)
}

func TestNewValue(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "Automated Test Title 1700000000123", NewValue("Automated Test Title", at))
	assert.NotEqual(t, NewValue("x", at), NewValue("x", at.Add(time.Millisecond)))
}

// After any run whose mutation succeeded and whose revert succeeded, the store
// holds the prior value whatever the observe outcome.
func TestTransaction_RestoreProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		prior := rapid.StringMatching(`[A-Za-z][A-Za-z ]{0,30}`).Draw(t, "prior")
		store := &memoryStore{
			value:      prior,
			failMutate: rapid.Bool().Draw(t, "failMutate"),
		}
		if rapid.Bool().Draw(t, "observeFails") {
			store.observeErr = ErrObservationTimeout
		}

		tx := NewTransaction("1", "title", prior, "new value", time.Second, arbor.NewLogger())
		result, err := tx.Run(context.Background(), store.actions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if store.value != prior {
			t.Fatalf("store holds %q, want %q", store.value, prior)
		}
		if store.failMutate && store.revertCalls != 0 {
			t.Fatalf("revert called %d times after failed mutation", store.revertCalls)
		}
		if !store.failMutate && store.revertCalls != 1 {
			t.Fatalf("revert called %d times, want exactly 1", store.revertCalls)
		}
		if !store.failMutate && result.State != models.TxReverted {
			t.Fatalf("final state %s", result.State)
		}
	})
}
