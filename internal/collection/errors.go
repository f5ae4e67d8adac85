package collection

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTimestamp  = errors.New("invalid timestamp")
	ErrInvalidItem       = errors.New("item must be a JSON object")
	ErrCorruptItem       = errors.New("stored item is unreadable")
	ErrInvalidCollection = errors.New("invalid collection name")
	ErrNoSchema          = errors.New("no schema for collection")
	ErrInvalidSchema     = errors.New("invalid schema")
)

// SchemaError is returned when an item does not satisfy the JSON Schema
// registered for its collection.
type SchemaError struct {
	Collection string
	Err        error
}

func (e *SchemaError) Error() string {
	return "schema validation failed: " + e.Err.Error()
}

func (e *SchemaError) Unwrap() error { return e.Err }
