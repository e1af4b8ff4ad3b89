package store

import "errors"

var (
	ErrNotFound        = errors.New("progress record not found")
	ErrAlreadyExists   = errors.New("progress record already exists")
	ErrNoEmbedding     = errors.New("no activity embedding recorded")
	ErrVersionConflict = errors.New("progress record modified concurrently")
)
