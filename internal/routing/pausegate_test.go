package routing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"aquabot/internal/domain"
)

type fakePauseStore struct {
	pauses map[string]domain.ConversationPause
	err    error
}

func newFakePauseStore() *fakePauseStore {
	return &fakePauseStore{pauses: map[string]domain.ConversationPause{}}
}

func (f *fakePauseStore) UpsertPause(_ context.Context, p domain.ConversationPause) error {
	if f.err != nil {
		return f.err
	}
	f.pauses[p.ConversationID] = p
	return nil
}

func (f *fakePauseStore) GetPause(_ context.Context, id string) (*domain.ConversationPause, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.pauses[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePauseStore) DeactivatePause(_ context.Context, id string) error {
	if p, ok := f.pauses[id]; ok {
		p.Active = false
		f.pauses[id] = p
	}
	return nil
}

func TestPauseGateTTLBoundaries(t *testing.T) {
	store := newFakePauseStore()
	gate := NewPauseGate(PauseGateConfig{
		Store: store, TTL: 10 * time.Hour, FailOpen: true, Logger: slog.Default(),
	})

	t0 := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	msg := domain.InboundMessage{
		SenderID: "9665002", ConversationID: "conv-1",
		AgentOwner: true, OperatorEmail: "agent@example.com",
	}
	if err := gate.RecordTakeover(context.Background(), msg, t0); err != nil {
		t.Fatalf("record takeover: %v", err)
	}

	cases := []struct {
		at   time.Time
		want bool
	}{
		{t0, true},
		{t0.Add(5 * time.Hour), true},
		{t0.Add(10*time.Hour - time.Nanosecond), true},
		{t0.Add(10 * time.Hour), false}, // expiry instant: no longer paused
		{t0.Add(11 * time.Hour), false},
	}
	for _, tc := range cases {
		// Reinstate: the expiry check deactivates lazily.
		store.pauses["conv-1"] = domain.ConversationPause{
			ConversationID: "conv-1", PausedAt: t0, ExpiresAt: t0.Add(10 * time.Hour), Active: true,
		}
		if got := gate.IsPaused(context.Background(), "conv-1", tc.at); got != tc.want {
			t.Errorf("IsPaused(%v) = %v, want %v", tc.at.Sub(t0), got, tc.want)
		}
	}
}

func TestPauseGateLazyExpiryDeactivates(t *testing.T) {
	store := newFakePauseStore()
	gate := NewPauseGate(PauseGateConfig{Store: store, TTL: time.Hour, FailOpen: true, Logger: slog.Default()})

	t0 := time.Now()
	store.pauses["conv-2"] = domain.ConversationPause{
		ConversationID: "conv-2", PausedAt: t0.Add(-2 * time.Hour),
		ExpiresAt: t0.Add(-time.Hour), Active: true,
	}

	if gate.IsPaused(context.Background(), "conv-2", t0) {
		t.Fatal("expired pause reported as paused")
	}
	if store.pauses["conv-2"].Active {
		t.Error("expired pause not deactivated on read")
	}
}

func TestPauseGateFailOpenPolicy(t *testing.T) {
	for _, tc := range []struct {
		failOpen bool
		want     bool // IsPaused result during a storage outage
	}{
		{failOpen: true, want: false},
		{failOpen: false, want: true},
	} {
		store := newFakePauseStore()
		store.err = errors.New("disk on fire")
		gate := NewPauseGate(PauseGateConfig{Store: store, TTL: time.Hour, FailOpen: tc.failOpen, Logger: slog.Default()})

		if got := gate.IsPaused(context.Background(), "conv", time.Now()); got != tc.want {
			t.Errorf("failOpen=%v: IsPaused = %v, want %v", tc.failOpen, got, tc.want)
		}
	}
}

func TestIsAgentAuthored(t *testing.T) {
	gate := NewPauseGate(PauseGateConfig{
		Store: newFakePauseStore(), TTL: time.Hour,
		TriggerEmails: []string{"Support@Example.com"},
		Logger:        slog.Default(),
	})

	cases := []struct {
		name string
		msg  domain.InboundMessage
		want bool
	}{
		{"trigger email, case folded", domain.InboundMessage{AgentOwner: true, OperatorEmail: "support@example.com"}, true},
		{"owner without trigger email", domain.InboundMessage{AgentOwner: true, OperatorEmail: "other@example.com"}, false},
		{"owner without email", domain.InboundMessage{AgentOwner: true}, false},
		{"end user", domain.InboundMessage{OperatorEmail: "support@example.com"}, false},
	}
	for _, tc := range cases {
		if got := gate.IsAgentAuthored(tc.msg); got != tc.want {
			t.Errorf("%s: IsAgentAuthored = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsAgentAuthoredEmptyTriggerSet(t *testing.T) {
	gate := NewPauseGate(PauseGateConfig{Store: newFakePauseStore(), TTL: time.Hour, Logger: slog.Default()})
	msg := domain.InboundMessage{AgentOwner: true, OperatorEmail: "anyone@example.com"}
	if !gate.IsAgentAuthored(msg) {
		t.Error("empty trigger set should accept any operator email")
	}
}
