package session

import (
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/policyqa/internal/apperr"
	"github.com/hyperjump/policyqa/internal/provider"
)

func TestManager(t *testing.T) {
	m := NewManager()
	a := m.Create(provider.BackendOpenAI)
	b := m.Create(provider.BackendGemini)
	if a.ID == b.ID {
		t.Fatal("session IDs must be unique")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d", m.Len())
	}
	got, err := m.Get(b.ID)
	if err != nil || got != b {
		t.Errorf("Get = %v, %v", got, err)
	}
	if err := m.Delete(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get deleted = %v", err)
	}
	if err := m.Delete(a.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Delete twice = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len after Close = %d", m.Len())
	}
}

func TestNewSessionIsIdle(t *testing.T) {
	s := New(provider.BackendAzure)
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.Backend != provider.BackendAzure || snap.ID == "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestManager_SweepEvictsIdleSessions(t *testing.T) {
	m := NewManager()
	defer m.Close()
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	stale := m.Create(provider.BackendOpenAI)
	busy := m.Create(provider.BackendOpenAI)
	clock = clock.Add(20 * time.Minute)
	fresh := m.Create(provider.BackendOpenAI)
	if !busy.busy.TryAcquire(1) {
		t.Fatal("busy session should be free")
	}

	clock = clock.Add(15 * time.Minute)
	n, err := m.Sweep(30 * time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("evicted = %d, want 1", n)
	}
	if _, err := m.Get(stale.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale session still present: %v", err)
	}
	if _, err := m.Get(busy.ID); err != nil {
		t.Errorf("session with an operation in flight was evicted: %v", err)
	}
	if _, err := m.Get(fresh.ID); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
	busy.busy.Release(1)
}

func TestManager_GetKeepsSessionAlive(t *testing.T) {
	m := NewManager()
	defer m.Close()
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	s := m.Create(provider.BackendOpenAI)
	clock = clock.Add(25 * time.Minute)
	if _, err := m.Get(s.ID); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(25 * time.Minute)
	if n, _ := m.Sweep(30 * time.Minute); n != 0 {
		t.Errorf("evicted = %d, want 0 after recent use", n)
	}
}
