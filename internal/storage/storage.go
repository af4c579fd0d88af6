package storage

import (
	"context"
	"io"
)

type PutInput struct {
	Key         string // caller-chosen key, e.g. "razorpay/evt_123.json"
	ContentType string
}

type PutResult struct {
	Key string
	URL string
}

// Storage archives raw gateway payloads for audit. Append-only in
// practice; Delete exists for retention cleanup jobs.
type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}
