package entity

import "errors"

var (
	ErrUnknownType = errors.New("unknown entity type")
	ErrMissingID   = errors.New("record has no id")
	ErrNotFound    = errors.New("record not found")
)
