// Package store is the durable storage boundary of the registry: one opaque blob per organization.
package store

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrInvalidOrg is returned for an empty organization id.
var ErrInvalidOrg = errors.New("organization id is required")

// Store loads and saves one serialized collection per organization.
// Load returns (nil, nil) when nothing was saved for orgID yet.
type Store interface {
	Load(ctx context.Context, orgID string) ([]byte, error)
	Save(ctx context.Context, orgID string, blob []byte) error
}

// Memory is an in-process Store. SaveErr and LoadErr, when set, are returned instead of
// touching the map, which lets tests exercise persistence failures.
type Memory struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int

	SaveErr error
	LoadErr error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Load(ctx context.Context, orgID string) ([]byte, error) {
	if orgID == "" {
		return nil, ErrInvalidOrg
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	b, ok := m.blobs[orgID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(b), nil
}

func (m *Memory) Save(ctx context.Context, orgID string, blob []byte) error {
	if orgID == "" {
		return ErrInvalidOrg
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.blobs[orgID] = slices.Clone(blob)
	m.saves++
	return nil
}

// SetSaveErr changes the injected save failure under the store lock.
func (m *Memory) SetSaveErr(err error) {
	m.mu.Lock()
	m.SaveErr = err
	m.mu.Unlock()
}

// Saves returns the number of successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
