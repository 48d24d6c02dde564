package record

import (
	"errors"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidData  = errors.New("invalid record data")
	ErrInvalidRange = errors.New("invalid range")
	ErrIDChange     = errors.New("record id cannot be changed")
)
