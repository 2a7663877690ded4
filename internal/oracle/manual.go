// Package oracle provides oracle adapters for market resolution: a
// manually-settled oracle for operator-resolved events and an on-chain
// aggregator adapter for feeds that publish outcomes on an EVM chain.
package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quorumlabs/settled/internal/domain"
)

// ErrNoAnswer is returned while a manual oracle has not been settled yet.
var ErrNoAnswer = errors.New("oracle: no answer reported yet")

// Manual is an operator-settled oracle. It reports nothing until Set is
// called.
type Manual struct {
	mu        sync.Mutex
	ref       common.Address
	answer    int64
	updatedAt time.Time
	set       bool
}

// NewManual creates a Manual oracle identified by ref.
func NewManual(ref common.Address) *Manual {
	return &Manual{ref: ref}
}

// Set records the settled outcome and the time it was observed.
func (m *Manual) Set(answer int64, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answer = answer
	m.updatedAt = updatedAt
	m.set = true
}

// LatestAnswer implements domain.Oracle.
func (m *Manual) LatestAnswer(_ context.Context) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return 0, time.Time{}, ErrNoAnswer
	}
	return m.answer, m.updatedAt, nil
}

// Ref implements domain.Oracle.
func (m *Manual) Ref() common.Address {
	return m.ref
}

// Compile-time interface check.
var _ domain.Oracle = (*Manual)(nil)
