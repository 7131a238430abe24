package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"loading to ready", StateLoading, StateReady, true},
		{"loading to error", StateLoading, StateError, true},
		{"ready to slots ready", StateReady, StateSlotsReady, true},
		{"slots ready to submitting", StateSlotsReady, StateSubmitting, true},
		{"submitting to success", StateSubmitting, StateSuccess, true},
		{"submitting to error", StateSubmitting, StateError, true},
		{"error back to slots ready", StateError, StateSlotsReady, true},
		{"success to ready", StateSuccess, StateReady, true},
		// Invalid transitions
		{"loading to submitting", StateLoading, StateSubmitting, false},
		{"ready to success", StateReady, StateSuccess, false},
		{"submitting to ready", StateSubmitting, StateReady, false},
		{"unknown state", State("bogus"), StateReady, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := fsm.CanTransition(tt.from, tt.to)
			if allowed != tt.shouldAllow {
				t.Errorf("transition %s -> %s: expected allowed=%v, got %v",
					tt.from, tt.to, tt.shouldAllow, allowed)
			}
		})
	}
}

func newTestStore(timeout time.Duration) *SessionStore {
	return NewSessionStore(timeout, func() *Controller {
		return NewController(&fakeGateway{}, Options{Location: time.UTC})
	})
}

func TestSessionStore(t *testing.T) {
	store := newTestStore(time.Hour)

	assert.Nil(t, store.Get(123), "expected nil for non-existent session")

	session, isNew := store.GetOrCreate(123)
	require.NotNil(t, session)
	assert.True(t, isNew)
	assert.Equal(t, int64(123), session.ChatID)
	assert.NotNil(t, session.Controller)
	assert.Equal(t, StateLoading, session.Controller.View().State)

	again, isNew := store.GetOrCreate(123)
	assert.False(t, isNew)
	assert.Same(t, session, again)
	assert.Same(t, session, store.Get(123))
	assert.Equal(t, 1, store.Len())

	session.Await(FieldEmail)
	assert.Equal(t, FieldEmail, store.Get(123).Awaiting())

	fresh := store.Reset(123)
	assert.NotSame(t, session, fresh)
	assert.NotSame(t, session.Controller, fresh.Controller)
	assert.Equal(t, FieldNone, fresh.Awaiting())

	store.GetOrCreate(456)
	var seen []int64
	store.Each(func(s *Session) { seen = append(seen, s.ChatID) })
	assert.ElementsMatch(t, []int64{123, 456}, seen)

	store.Delete(123)
	assert.Nil(t, store.Get(123))
	assert.Equal(t, 1, store.Len())
}

func TestSessionStore_Expiry(t *testing.T) {
	store := newTestStore(10 * time.Millisecond)

	first, _ := store.GetOrCreate(1)
	time.Sleep(30 * time.Millisecond)

	second, isNew := store.GetOrCreate(1)
	assert.True(t, isNew, "expired session must be replaced")
	assert.NotSame(t, first, second)

	store.GetOrCreate(2)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, store.Cleanup())
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_DefaultTimeout(t *testing.T) {
	store := newTestStore(0)
	assert.Equal(t, 30*time.Minute, store.timeout)
}
