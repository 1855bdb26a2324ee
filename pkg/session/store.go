// Package session keeps per-session chat messages and tool executions and
// fans changes out to subscribers.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Event types
const (
	EventMessage       = "message"
	EventToolExecution = "tool_execution"
	EventReset         = "reset"
)

// Message one chat message
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Execution one recorded tool call
type Execution struct {
	ID         string                 `json:"id"`
	ToolName   string                 `json:"tool_name"`
	Input      map[string]interface{} `json:"input"`
	Output     interface{}            `json:"output"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	DurationMs float64                `json:"duration_ms"`
}

// Metrics per-session counters
type Metrics struct {
	SessionID    string    `json:"session_id"`
	Messages     int       `json:"messages"`
	Executions   int       `json:"executions"`
	Successes    int       `json:"successes"`
	Failures     int       `json:"failures"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Event a change pushed to subscribers
type Event struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id"`
	Message   *Message   `json:"message,omitempty"`
	Execution *Execution `json:"execution,omitempty"`
}

type session struct {
	messages   []Message
	executions []Execution
	metrics    Metrics
}

type subscriber struct {
	session string
	ch      chan Event
}

// Store in-memory session history
type Store struct {
	sessions         map[string]*session
	limit            int
	mutex            sync.RWMutex
	subscribers      map[int]subscriber
	nextSubscriberID int
}

// NewStore creates a store keeping at most limit messages and executions per
// session. limit <= 0 keeps everything.
func NewStore(limit int) *Store {
	return &Store{
		sessions:    make(map[string]*session),
		limit:       limit,
		subscribers: make(map[int]subscriber),
	}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

func (s *Store) get(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		sess = &session{metrics: Metrics{SessionID: id, CreatedAt: now, LastActivity: now}}
		s.sessions[id] = sess
	}
	return sess
}

// AddMessage appends a chat message.
func (s *Store) AddMessage(id string, role Role, content string) Message {
	msg := Message{Role: role, Content: content, Timestamp: time.Now()}

	s.mutex.Lock()
	sess := s.get(id)
	sess.messages = append(sess.messages, msg)
	if s.limit > 0 && len(sess.messages) > s.limit {
		sess.messages = append([]Message(nil), sess.messages[len(sess.messages)-s.limit:]...)
	}
	sess.metrics.Messages++
	sess.metrics.LastActivity = msg.Timestamp
	s.mutex.Unlock()

	s.broadcast(Event{Type: EventMessage, SessionID: id, Message: &msg})
	return msg
}

// AddExecution records a tool call, filling in the ID and timestamp when
// missing.
func (s *Store) AddExecution(id string, exec Execution) Execution {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Timestamp.IsZero() {
		exec.Timestamp = time.Now()
	}

	s.mutex.Lock()
	sess := s.get(id)
	sess.executions = append(sess.executions, exec)
	if s.limit > 0 && len(sess.executions) > s.limit {
		sess.executions = append([]Execution(nil), sess.executions[len(sess.executions)-s.limit:]...)
	}
	sess.metrics.Executions++
	if exec.Status == "success" {
		sess.metrics.Successes++
	} else {
		sess.metrics.Failures++
	}
	sess.metrics.LastActivity = exec.Timestamp
	s.mutex.Unlock()

	s.broadcast(Event{Type: EventToolExecution, SessionID: id, Execution: &exec})
	return exec
}

// Exists reports whether the session has any history.
func (s *Store) Exists(id string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Sessions returns known session IDs sorted by last activity, newest first.
func (s *Store) Sessions() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.sessions[ids[i]].metrics.LastActivity.After(s.sessions[ids[j]].metrics.LastActivity)
	})
	return ids
}

// Messages returns a copy of the session's messages.
func (s *Store) Messages(id string) []Message {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return []Message{}
	}
	return append([]Message{}, sess.messages...)
}

// Executions returns a copy of the session's tool executions.
func (s *Store) Executions(id string) []Execution {
	return s.Recent(id, 0)
}

// Recent returns the last n executions; n <= 0 returns all of them.
func (s *Store) Recent(id string, n int) []Execution {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return []Execution{}
	}
	execs := sess.executions
	if n > 0 && len(execs) > n {
		execs = execs[len(execs)-n:]
	}
	return append([]Execution{}, execs...)
}

// Metrics returns the session counters.
func (s *Store) Metrics(id string) (Metrics, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Metrics{SessionID: id}, false
	}
	return sess.metrics, true
}

// Reset drops the session's history. It reports whether the session existed.
func (s *Store) Reset(id string) bool {
	s.mutex.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mutex.Unlock()

	if ok {
		s.broadcast(Event{Type: EventReset, SessionID: id})
	}
	return ok
}

// Subscribe streams events for one session, or for all sessions when id is
// empty. The returned history holds the session's messages up to the moment
// of subscription; every later change arrives on the channel.
func (s *Store) Subscribe(id string) ([]Message, <-chan Event, func()) {
	s.mutex.Lock()
	subID := s.nextSubscriberID
	s.nextSubscriberID++
	ch := make(chan Event, 32)
	s.subscribers[subID] = subscriber{session: id, ch: ch}
	history := []Message{}
	if sess, ok := s.sessions[id]; ok && id != "" {
		history = append(history, sess.messages...)
	}
	s.mutex.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mutex.Lock()
			defer s.mutex.Unlock()
			delete(s.subscribers, subID)
			close(ch)
		})
	}
	return history, ch, unsubscribe
}

// broadcast delivers the event to matching subscribers. Sends happen under
// the read lock so unsubscribe cannot close a channel mid-send; a subscriber
// whose buffer is full misses the event.
func (s *Store) broadcast(event Event) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, sub := range s.subscribers {
		if sub.session != "" && sub.session != event.SessionID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}
