package store

import "errors"

var (
	ErrNotFound        = errors.New("exemplar not found")
	ErrContentTooShort = errors.New("exemplar content below minimum length")
	ErrEmptyBatch      = errors.New("empty id batch")
)
