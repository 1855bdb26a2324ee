package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_MessagesAndMetrics(t *testing.T) {
	s := NewStore(0)

	s.AddMessage("a", RoleUser, "show tables")
	s.AddMessage("a", RoleAssistant, "Found 5 tables")
	s.AddExecution("a", Execution{ToolName: "oracle_schema_explorer", Status: "success"})
	s.AddExecution("a", Execution{ToolName: "api_caller", Status: "error"})

	msgs := s.Messages("a")
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "Found 5 tables", msgs[1].Content)

	execs := s.Executions("a")
	require.Len(t, execs, 2)
	assert.NotEmpty(t, execs[0].ID)
	assert.False(t, execs[0].Timestamp.IsZero())

	m, ok := s.Metrics("a")
	require.True(t, ok)
	assert.Equal(t, 2, m.Messages)
	assert.Equal(t, 2, m.Executions)
	assert.Equal(t, 1, m.Successes)
	assert.Equal(t, 1, m.Failures)

	_, ok = s.Metrics("b")
	assert.False(t, ok)
	assert.Empty(t, s.Messages("b"))
	assert.NotNil(t, s.Messages("b"))
}

func TestStore_Recent(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.AddExecution("a", Execution{ToolName: fmt.Sprintf("tool%d", i), Status: "success"})
	}

	all := s.Executions("a")
	require.Len(t, all, 3)
	assert.Equal(t, "tool2", all[0].ToolName)

	recent := s.Recent("a", 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "tool3", recent[0].ToolName)
	assert.Equal(t, "tool4", recent[1].ToolName)

	m, _ := s.Metrics("a")
	assert.Equal(t, 5, m.Executions)
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(0)
	s.AddMessage("a", RoleUser, "hi")
	require.True(t, s.Exists("a"))

	assert.True(t, s.Reset("a"))
	assert.False(t, s.Exists("a"))
	assert.Empty(t, s.Messages("a"))
	assert.False(t, s.Reset("a"))
}

func TestStore_Sessions(t *testing.T) {
	s := NewStore(0)
	s.AddMessage("old", RoleUser, "first")
	time.Sleep(2 * time.Millisecond)
	s.AddMessage("new", RoleUser, "second")

	assert.Equal(t, []string{"new", "old"}, s.Sessions())
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := NewStore(0)
	s.AddMessage("a", RoleUser, "earlier")

	history, ch, unsubscribe := s.Subscribe("a")
	defer unsubscribe()

	require.Len(t, history, 1)
	assert.Equal(t, "earlier", history[0].Content)

	s.AddMessage("b", RoleUser, "other session")
	s.AddExecution("a", Execution{ToolName: "oracle_query_executor", Status: "success"})

	ev := receive(t, ch)
	assert.Equal(t, EventToolExecution, ev.Type)
	assert.Equal(t, "oracle_query_executor", ev.Execution.ToolName)

	s.Reset("a")
	assert.Equal(t, EventReset, receive(t, ch).Type)
}

func TestStore_SubscribeLongHistory(t *testing.T) {
	s := NewStore(100)
	for i := 0; i < 50; i++ {
		s.AddMessage("a", RoleUser, fmt.Sprintf("message %d", i))
	}

	history, ch, unsubscribe := s.Subscribe("a")
	defer unsubscribe()

	require.Len(t, history, 50)
	assert.Equal(t, "message 0", history[0].Content)
	assert.Equal(t, "message 49", history[49].Content)

	// later messages arrive only as live events, never in the history
	s.AddMessage("a", RoleAssistant, "after")
	assert.Equal(t, "after", receive(t, ch).Message.Content)
	assert.Len(t, history, 50)
}

func TestStore_ConcurrentSubscribers(t *testing.T) {
	s := NewStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, ch, unsubscribe := s.Subscribe("a")
			select {
			case <-ch:
			default:
			}
			unsubscribe()
		}()
		go func(i int) {
			defer wg.Done()
			s.AddMessage("a", RoleUser, fmt.Sprintf("message %d", i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Messages("a"), 50)
}

func TestStore_SubscribeAll(t *testing.T) {
	s := NewStore(0)
	history, ch, unsubscribe := s.Subscribe("")
	assert.Empty(t, history)

	s.AddMessage("x", RoleUser, "one")
	s.AddMessage("y", RoleUser, "two")
	assert.Equal(t, "x", receive(t, ch).SessionID)
	assert.Equal(t, "y", receive(t, ch).SessionID)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)

	// broadcasting after unsubscribe must not panic
	s.AddMessage("x", RoleUser, "three")
}
