package domain

import "errors"

var (
	ErrBatchNotFound        = errors.New("batch not found")
	ErrItemNotFound         = errors.New("queue item not found")
	ErrRecipientNotFound    = errors.New("recipient not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrTemplateNotFound     = errors.New("message template not found")

	// ErrInvalidBatchState is returned when an operation's precondition on the
	// batch status is unmet, e.g. cancelling an already-completed batch.
	ErrInvalidBatchState = errors.New("operation not permitted in current batch state")

	// ErrItemStateChanged is returned by conditional item updates when the row
	// is no longer in the expected status (e.g. cancelled mid-flight).
	ErrItemStateChanged = errors.New("queue item no longer in expected state")

	ErrNoRecipients   = errors.New("no recipients supplied")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrInvalidChannel = errors.New("invalid channel")
)
