package interfaces

import "context"

// ContentStore is the external content-management API targeted by a content sync transaction
type ContentStore interface {
	// GetField reads the current value of field on the entry identified by id
	GetField(ctx context.Context, id, field string) (string, error)

	// SetField writes value to field on the entry identified by id
	SetField(ctx context.Context, id, field, value string) error
}
