// Package memory keeps per-session conversation history so follow-up
// questions can reference earlier turns. History lives only as long as the
// session; nothing is persisted.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
	At      time.Time
}

// conversation holds one session's turns.
type conversation struct {
	messages  []Message
	updatedAt time.Time
}

// Store is an in-memory conversation store with TTL expiry.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxMessages   int
	ttl           time.Duration
}

// NewStore creates a conversation store keeping at most maxMessages per
// session and expiring sessions idle longer than ttl.
func NewStore(maxMessages int, ttl time.Duration) *Store {
	s := &Store{
		conversations: make(map[string]*conversation),
		maxMessages:   maxMessages,
		ttl:           ttl,
	}

	go s.cleanupLoop()

	return s
}

// DefaultStore creates a store with 20 messages per session and a 1 hour TTL.
func DefaultStore() *Store {
	return NewStore(20, time.Hour)
}

// AddUserMessage records a user turn.
func (s *Store) AddUserMessage(sessionID, content string) {
	s.add(sessionID, "user", content)
}

// AddAssistantMessage records an assistant turn.
func (s *Store) AddAssistantMessage(sessionID, content string) {
	s.add(sessionID, "assistant", content)
}

func (s *Store) add(sessionID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		conv = &conversation{}
		s.conversations[sessionID] = conv
	}

	conv.messages = append(conv.messages, Message{Role: role, Content: content, At: time.Now()})
	conv.updatedAt = time.Now()

	// Keep only the most recent turns.
	if len(conv.messages) > s.maxMessages {
		conv.messages = conv.messages[len(conv.messages)-s.maxMessages:]
	}
}

// Recent returns up to n most recent messages for a session, oldest first.
func (s *Store) Recent(sessionID string, n int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil
	}

	messages := conv.messages
	if len(messages) > n {
		messages = messages[len(messages)-n:]
	}

	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Clear removes a session's history, for when its source changes.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.expire()
	}
}

func (s *Store) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, conv := range s.conversations {
		if now.Sub(conv.updatedAt) > s.ttl {
			delete(s.conversations, id)
		}
	}
}

// FormatForPrompt renders messages as a transcript for prompt inclusion.
// Returns the empty string when there is no history.
func FormatForPrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			sb.WriteString("User: " + msg.Content + "\n")
		case "assistant":
			sb.WriteString("Assistant: " + msg.Content + "\n")
		}
	}
	return sb.String()
}
