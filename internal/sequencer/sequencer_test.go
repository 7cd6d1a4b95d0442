package sequencer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	numbers map[Key][]int64
	err     error
}

func newMemStore() *memStore {
	return &memStore{numbers: make(map[Key][]int64)}
}

func (m *memStore) FindLastNumber(_ context.Context, premiseID, deviceID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, false, m.err
	}
	nums := m.numbers[Key{premiseID, deviceID}]
	if len(nums) == 0 {
		return 0, false, nil
	}
	last := nums[0]
	for _, n := range nums {
		if n > last {
			last = n
		}
	}
	return last, true, nil
}

func (m *memStore) save(key Key, number int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.numbers[key] = append(m.numbers[key], number)
}

func (m *memStore) all(key Key) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]int64(nil), m.numbers[key]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var blago = Key{PremiseID: "B1", DeviceID: "BLAGO"}

func TestNextNumber(t *testing.T) {
	store := newMemStore()
	seq := New(store)

	n, err := seq.NextNumber(context.Background(), blago)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	store.save(blago, 41)
	n, err = seq.NextNumber(context.Background(), blago)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	store.err = errors.New("db down")
	_, err = seq.NextNumber(context.Background(), blago)
	assert.ErrorContains(t, err, "db down")
}

func TestDo_SerializesSameDevice(t *testing.T) {
	store := newMemStore()
	store.save(blago, 41)
	seq := New(store)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := seq.Do(context.Background(), blago, func(_ context.Context, number int64) error {
				time.Sleep(time.Millisecond)
				store.save(blago, number)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got := store.all(blago)
	require.Len(t, got, n+1)
	for i, number := range got {
		assert.Equal(t, int64(41+i), number)
	}
	assert.Equal(t, 0, seq.active())
}

func TestDo_FailedAttemptDoesNotAdvance(t *testing.T) {
	store := newMemStore()
	seq := New(store)

	err := seq.Do(context.Background(), blago, func(context.Context, int64) error {
		return errors.New("authority unavailable")
	})
	require.Error(t, err)

	var seen int64
	require.NoError(t, seq.Do(context.Background(), blago, func(_ context.Context, number int64) error {
		seen = number
		return nil
	}))
	assert.Equal(t, int64(1), seen)
}

func TestDo_DevicesDoNotContend(t *testing.T) {
	seq := New(newMemStore())

	unlock, err := seq.Lock(context.Background(), blago)
	require.NoError(t, err)
	defer unlock()

	other := Key{PremiseID: "B1", DeviceID: "BLAGO2"}
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, seq.Do(context.Background(), other, func(context.Context, int64) error { return nil }))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission on another device waited for a foreign lock")
	}
}

func TestDo_HonorsContext(t *testing.T) {
	seq := New(newMemStore())

	unlock, err := seq.Lock(context.Background(), blago)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	called := false
	err = seq.Do(ctx, blago, func(context.Context, int64) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
	assert.Equal(t, 1, seq.active())

	unlock()
	unlock()
	assert.Equal(t, 0, seq.active())
}
