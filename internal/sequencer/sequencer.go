// Package sequencer hands out invoice numbers per electronic device. Numbers come from
// the last persisted invoice; callers hold the device lock for as long as the number
// is in flight so that two submissions never see the same "next" number.
package sequencer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Key identifies one numbering stream.
type Key struct {
	PremiseID string
	DeviceID  string
}

func (k Key) String() string {
	return k.PremiseID + "/" + k.DeviceID
}

// Store reads the highest persisted invoice number of a stream.
// found is false when the stream has no invoices yet.
type Store interface {
	FindLastNumber(ctx context.Context, premiseID, deviceID string) (number int64, found bool, err error)
}

// Sequencer serializes work per Key. Different keys never contend.
type Sequencer struct {
	store Store

	mu    sync.Mutex
	locks map[Key]*deviceLock
}

type deviceLock struct {
	sem  *semaphore.Weighted
	refs int
}

func New(store Store) *Sequencer {
	return &Sequencer{
		store: store,
		locks: make(map[Key]*deviceLock),
	}
}

// NextNumber returns the last persisted number plus one, or 1 for an empty stream.
// It does not lock; use Do when the number will be used.
func (s *Sequencer) NextNumber(ctx context.Context, key Key) (int64, error) {
	last, found, err := s.store.FindLastNumber(ctx, key.PremiseID, key.DeviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to read last invoice number for %s: %w", key, err)
	}
	if !found {
		return 1, nil
	}
	return last + 1, nil
}

// Do holds the lock of key, computes the next number and runs fn with it. fn is
// expected to build, submit and persist the invoice before returning so the next
// caller observes the number as used.
func (s *Sequencer) Do(ctx context.Context, key Key, fn func(ctx context.Context, number int64) error) error {
	unlock, err := s.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	number, err := s.NextNumber(ctx, key)
	if err != nil {
		return err
	}
	return fn(ctx, number)
}

// Lock acquires the lock of key, honoring ctx cancellation.
func (s *Sequencer) Lock(ctx context.Context, key Key) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &deviceLock{sem: semaphore.NewWeighted(1)}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		s.release(key, l)
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.sem.Release(1)
			s.release(key, l)
		})
	}, nil
}

func (s *Sequencer) release(key Key, l *deviceLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

// active reports the number of keys with holders or waiters.
func (s *Sequencer) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
