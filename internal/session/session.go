// Package session holds per-user conversation state and the controller that
// processes uploads and answers questions against the persisted index.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hyperjump/policyqa/internal/embedding"
	"github.com/hyperjump/policyqa/internal/models"
	"github.com/hyperjump/policyqa/internal/provider"
	"github.com/hyperjump/policyqa/internal/vectorstore"
)

// HistoryLimit bounds the model-visible history. The transcript is unbounded.
const HistoryLimit = 5

// FailureMessage replaces the answer when answering fails.
const FailureMessage = "Sorry, Something Went Wrong!"

// State is the document lifecycle of a session.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
)

// Session is one user's context: selected backend, active index, history and transcript.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	backend    provider.Backend
	state      State
	handle     *vectorstore.Handle
	document   *models.Document
	embedder   embedding.Embedder
	embBackend provider.Backend
	history    []models.ConversationTurn
	transcript []models.ChatMessage

	// busy admits one Process or Ask at a time.
	busy *semaphore.Weighted
}

// New creates an idle session using backend.
func New(backend provider.Backend) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		backend:   backend,
		state:     StateIdle,
		busy:      semaphore.NewWeighted(1),
	}
}

// Snapshot is a copy of the session's visible state.
type Snapshot struct {
	ID         string               `json:"id"`
	Backend    provider.Backend     `json:"backend"`
	State      State                `json:"state"`
	Document   *models.Document     `json:"document,omitempty"`
	Transcript []models.ChatMessage `json:"transcript"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Snapshot returns a copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:         s.ID,
		Backend:    s.backend,
		State:      s.state,
		Document:   s.document,
		Transcript: append([]models.ChatMessage{}, s.transcript...),
		CreatedAt:  s.CreatedAt,
	}
}

// Backend returns the selected backend.
func (s *Session) Backend() provider.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// State returns the document state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Document returns the document of the active index, or nil.
func (s *Session) Document() *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

// History returns a copy of the model-visible history, oldest first.
func (s *Session) History() []models.ConversationTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ConversationTurn{}, s.history...)
}

// Transcript returns a copy of the full transcript.
func (s *Session) Transcript() []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ChatMessage{}, s.transcript...)
}

func (s *Session) setBackend(b provider.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

// beginProcessing moves to Processing and returns the state to restore on failure.
func (s *Session) beginProcessing() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if s.handle != nil {
		prev = StateReady
	}
	s.state = StateProcessing
	return prev
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// activate installs a freshly built handle and closes the one it replaces.
func (s *Session) activate(h *vectorstore.Handle, doc *models.Document) error {
	s.mu.Lock()
	old := s.handle
	s.handle = h
	s.document = doc
	s.state = StateReady
	s.mu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

func (s *Session) activeHandle() *vectorstore.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// cachedEmbedder returns the embedder built for b, if any.
func (s *Session) cachedEmbedder(b provider.Backend) embedding.Embedder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.embedder != nil && s.embBackend == b {
		return s.embedder
	}
	return nil
}

// cacheEmbedder keeps emb for b and closes a replaced embedder.
func (s *Session) cacheEmbedder(b provider.Backend, emb embedding.Embedder) {
	s.mu.Lock()
	old := s.embedder
	s.embedder, s.embBackend = emb, b
	s.mu.Unlock()
	if old != nil && old != emb {
		_ = old.Close()
	}
}

func (s *Session) appendMessage(role models.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, models.ChatMessage{Role: role, Content: content})
}

// appendTurn adds a turn, evicting the oldest ones beyond HistoryLimit.
func (s *Session) appendTurn(turn models.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) >= HistoryLimit {
		s.history = append(s.history[:0], s.history[len(s.history)-HistoryLimit+1:]...)
	}
	s.history = append(s.history, turn)
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.transcript = nil
}

// Close releases the active index and the cached embedder.
func (s *Session) Close() error {
	s.mu.Lock()
	h, emb := s.handle, s.embedder
	s.handle, s.embedder = nil, nil
	s.mu.Unlock()
	var errs []error
	if h != nil {
		errs = append(errs, h.Close())
	}
	if emb != nil {
		errs = append(errs, emb.Close())
	}
	return errors.Join(errs...)
}
