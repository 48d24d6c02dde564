package mutation

import "errors"

var (
	ErrInvalidKind           = errors.New("invalid mutation kind")
	ErrMissingIdempotencyKey = errors.New("mutation has no idempotency key")
	ErrEmptyPayload          = errors.New("create mutation has empty payload")
	ErrNotFound              = errors.New("mutation not found")
)
