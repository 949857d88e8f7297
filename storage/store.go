package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("Key does not exist")
	ErrInvalidJSON = errors.New("Values are not valid JSON")
)

type Update struct {
	Key   string
	Value []byte
}

type Store interface {
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string) ([]byte, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
