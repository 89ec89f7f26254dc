package models

import "time"

// TransactionState is the lifecycle state of a content sync transaction
type TransactionState string

const (
	TxPending       TransactionState = "pending"        // Nothing written yet
	TxMutated       TransactionState = "mutated"        // CMS accepted the new value
	TxObserved      TransactionState = "observed"       // Frontend showed the new value
	TxObserveFailed TransactionState = "observe_failed" // Frontend did not show the new value in time
	TxReverted      TransactionState = "reverted"       // Prior value restored
	TxRevertFailed  TransactionState = "revert_failed"  // Restore failed, external state is suspect
)

// IsTerminal returns true once the transaction can make no further progress
func (s TransactionState) IsTerminal() bool {
	return s == TxReverted || s == TxRevertFailed
}

// StateTransition records one state change
type StateTransition struct {
	From TransactionState `json:"from"`
	To   TransactionState `json:"to"`
	At   time.Time        `json:"at"`
}
