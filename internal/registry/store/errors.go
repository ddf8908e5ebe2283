package store

import "fmt"

// NotFoundError indicates the referenced resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates the operation conflicts with the current state of
// the resource, e.g. a content edit on a deleted or recalled message.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// ForbiddenError indicates insufficient access.
type ForbiddenError struct{}

func (e *ForbiddenError) Error() string {
	return "forbidden"
}

// RecallWindowError indicates a recall attempted after the allowed window.
// Kept distinct from NotFoundError so callers can tell "too late" from
// "no such message".
type RecallWindowError struct {
	ID string
}

func (e *RecallWindowError) Error() string {
	return fmt.Sprintf("message %s is outside the recall window", e.ID)
}
