package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thesecretlab-dev/anima-dashboard/pkg/models"
)

// Store is the gateway's view of session state: ordered message history
// and listing metadata, keyed by display key within one agent scope.
type Store interface {
	// GetOrCreate returns the session for displayKey, creating it with
	// a fresh session id on first use.
	GetOrCreate(ctx context.Context, displayKey string) (*Session, error)

	// AppendMessage appends one message to a session's history and
	// bumps its updatedAt.
	AppendMessage(ctx context.Context, displayKey string, msg models.Message) error

	// History returns a session's ordered message list.
	History(ctx context.Context, displayKey string) (*Session, []models.Message, error)

	// List returns known sessions, most recently updated first,
	// truncated to limit when limit > 0.
	List(ctx context.Context, limit int) ([]models.SessionEntry, error)
}

// Session is the stored metadata for one conversation.
type Session struct {
	DisplayKey   string
	CanonicalKey string
	SessionID    string
	UpdatedAt    time.Time
}

// MemoryStore is an in-memory Store for a single agent scope. State is
// lost on restart; durable history lives in the external session store.
type MemoryStore struct {
	mu       sync.RWMutex
	scope    string
	sessions map[string]*Session
	history  map[string][]models.Message
	now      func() time.Time
}

// NewMemoryStore creates an empty store scoped to one agent.
func NewMemoryStore(scope string) *MemoryStore {
	return &MemoryStore{
		scope:    scope,
		sessions: make(map[string]*Session),
		history:  make(map[string][]models.Message),
		now:      time.Now,
	}
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, displayKey string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(displayKey), nil
}

func (s *MemoryStore) getOrCreateLocked(displayKey string) *Session {
	if session, ok := s.sessions[displayKey]; ok {
		return session
	}
	session := &Session{
		DisplayKey:   displayKey,
		CanonicalKey: CanonicalKey(s.scope, displayKey),
		SessionID:    "sess-" + uuid.NewString(),
		UpdatedAt:    s.now(),
	}
	s.sessions[displayKey] = session
	return session
}

// AppendMessage implements Store.
func (s *MemoryStore) AppendMessage(_ context.Context, displayKey string, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.getOrCreateLocked(displayKey)
	if msg.Timestamp == 0 {
		msg.Timestamp = s.now().UnixMilli()
	}
	s.history[displayKey] = append(s.history[displayKey], msg)
	session.UpdatedAt = s.now()
	return nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, displayKey string) (*Session, []models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := s.getOrCreateLocked(displayKey)
	stored := s.history[displayKey]
	messages := make([]models.Message, len(stored))
	copy(messages, stored)
	copied := *session
	return &copied, messages, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]models.SessionEntry, error) {
	s.mu.RLock()
	entries := make([]models.SessionEntry, 0, len(s.sessions))
	for _, session := range s.sessions {
		entries = append(entries, models.SessionEntry{
			Key:       session.DisplayKey,
			SessionID: session.SessionID,
			UpdatedAt: session.UpdatedAt.UnixMilli(),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt > entries[j].UpdatedAt
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
