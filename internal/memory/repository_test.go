package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/johnymontana/memory-graph-workshop/internal/graph"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
)

func newTestRepo() *Repository {
	return NewRepository(graph.NewMemStore(), log.NewNop())
}

func TestAppendMessageChainOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	thread, err := repo.CreateThread(ctx, "chain test")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	var wantIDs []string
	for i := 0; i < 5; i++ {
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderAgent
		}
		msg, err := repo.AppendMessage(ctx, thread.ID, sender, fmt.Sprintf("message %d", i), AppendOptions{})
		if err != nil {
			t.Fatalf("AppendMessage %d: %v", i, err)
		}
		wantIDs = append(wantIDs, msg.ID)
	}

	got, err := repo.GetThread(ctx, thread.ID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if len(got.Messages) != len(wantIDs) {
		t.Fatalf("got %d messages, want %d", len(got.Messages), len(wantIDs))
	}
	for i, m := range got.Messages {
		if m.ID != wantIDs[i] {
			t.Errorf("position %d: got %s, want %s", i, m.ID, wantIDs[i])
		}
	}
	if got.LastMessageAt.IsZero() {
		t.Error("last_message_at not set")
	}
}

func TestAppendMessageUnknownThread(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	_, err := repo.AppendMessage(ctx, "no-such-thread", SenderUser, "hi", AppendOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAppendReasoningStepsOrderAndNumbers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	thread, _ := repo.CreateThread(ctx, "")
	msg, err := repo.AppendMessage(ctx, thread.ID, SenderAgent, "answer", AppendOptions{})
	if err != nil {
		t.Fatal(err)
	}

	steps := []ReasoningStep{
		{Number: 1, Reasoning: "look up recent articles", ToolCalls: []ToolCall{
			{ToolName: "get_recent_news", Attempt: 1, Empty: true},
			{ToolName: "get_recent_news", Attempt: 2},
		}},
		{Number: 2, Reasoning: "narrow by topic", ToolCalls: []ToolCall{
			{ToolName: "get_news_by_topic", Attempt: 1},
		}},
		{Number: 3, Reasoning: "compose"},
	}
	if err := repo.AppendReasoningSteps(ctx, msg.ID, steps, nil); err != nil {
		t.Fatalf("AppendReasoningSteps: %v", err)
	}

	got, err := repo.Steps(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d steps, want 3", len(got))
	}
	for i, s := range got {
		if s.Number != i+1 {
			t.Errorf("step %d number = %d", i, s.Number)
		}
	}
	if len(got[0].ToolCalls) != 2 {
		t.Fatalf("step 1 tool calls = %d, want 2", len(got[0].ToolCalls))
	}
	if got[0].ToolCalls[0].Attempt != 1 || !got[0].ToolCalls[0].Empty {
		t.Errorf("first attempt not preserved: %+v", got[0].ToolCalls[0])
	}
	if got[0].ToolCalls[1].Attempt != 2 || got[0].ToolCalls[1].Empty {
		t.Errorf("second attempt not preserved: %+v", got[0].ToolCalls[1])
	}
}

func TestAppendReasoningStepsUnknownMessage(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	err := repo.AppendReasoningSteps(ctx, "missing", []ReasoningStep{{Number: 1}}, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestToolUpsertIdempotence(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	repo := NewRepository(store, log.NewNop())
	thread, _ := repo.CreateThread(ctx, "")

	const calls = 4
	for i := 0; i < calls; i++ {
		msg, err := repo.AppendMessage(ctx, thread.ID, SenderAgent, "turn", AppendOptions{})
		if err != nil {
			t.Fatal(err)
		}
		err = repo.AppendReasoningSteps(ctx, msg.ID, []ReasoningStep{
			{Number: 1, ToolCalls: []ToolCall{{ToolName: "search_news", Attempt: 1}}},
		}, map[string]string{"search_news": "keyword search over articles"})
		if err != nil {
			t.Fatal(err)
		}
	}

	tools, err := store.MatchNodes(ctx, LabelTool)
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 1 {
		t.Fatalf("got %d Tool nodes, want 1", len(tools))
	}
	if n := tools[0].Props["usage_count"]; propInt(tools[0].Props, "usage_count") != calls {
		t.Errorf("usage_count = %v, want %d", n, calls)
	}
	if propString(tools[0].Props, "description") != "keyword search over articles" {
		t.Errorf("description = %q", tools[0].Props["description"])
	}
}

func TestDeleteThreadCascadeSparesTools(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemStore()
	repo := NewRepository(store, log.NewNop())

	thread, _ := repo.CreateThread(ctx, "doomed")
	msg, _ := repo.AppendMessage(ctx, thread.ID, SenderAgent, "turn", AppendOptions{})
	err := repo.AppendReasoningSteps(ctx, msg.ID, []ReasoningStep{
		{Number: 1, ToolCalls: []ToolCall{{ToolName: "get_topics", Attempt: 1}}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// A second thread stays behind the deletion.
	other, _ := repo.CreateThread(ctx, "survivor")
	if _, err := repo.AppendMessage(ctx, other.ID, SenderUser, "hello", AppendOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteThread(ctx, thread.ID); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}

	// Only the survivor thread's single message should remain; the
	// deleted thread owned every step and tool call.
	counts := map[string]int{LabelMessage: 1, LabelReasoningStep: 0, LabelToolCall: 0}
	for label, want := range counts {
		nodes, err := store.MatchNodes(ctx, label)
		if err != nil {
			t.Fatal(err)
		}
		if len(nodes) != want {
			t.Errorf("%s count after cascade = %d, want %d", label, len(nodes), want)
		}
	}

	tools, _ := store.MatchNodes(ctx, LabelTool)
	if len(tools) != 1 {
		t.Errorf("shared Tool node count = %d, want 1", len(tools))
	}
	if _, err := repo.GetThread(ctx, other.ID); err != nil {
		t.Errorf("surviving thread unreadable: %v", err)
	}
	if _, err := repo.GetThread(ctx, thread.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted thread still readable: %v", err)
	}
}

func TestListThreadsOrder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	a, _ := repo.CreateThread(ctx, "a")
	b, _ := repo.CreateThread(ctx, "b")
	c, _ := repo.CreateThread(ctx, "c")

	// Touch a, then c; b never gets a message.
	if _, err := repo.AppendMessage(ctx, a.ID, SenderUser, "1", AppendOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AppendMessage(ctx, c.ID, SenderUser, "2", AppendOptions{}); err != nil {
		t.Fatal(err)
	}

	threads, err := repo.ListThreads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 3 {
		t.Fatalf("got %d threads", len(threads))
	}
	if threads[0].ID != c.ID || threads[1].ID != a.ID || threads[2].ID != b.ID {
		t.Errorf("order = %s, %s, %s", threads[0].Title, threads[1].Title, threads[2].Title)
	}

	last, err := repo.LastActiveThread(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last.ID != c.ID {
		t.Errorf("last active = %s, want %s", last.ID, c.ID)
	}
}

func TestUpdateTitleAndSummary(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()
	thread, _ := repo.CreateThread(ctx, "")

	if err := repo.UpdateTitle(ctx, thread.ID, "AI Chip Markets"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetSummary(ctx, thread.ID, "user asked about chips"); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.GetThread(ctx, thread.ID)
	if got.Title != "AI Chip Markets" || got.Summary != "user asked about chips" {
		t.Errorf("got %+v", got)
	}

	if err := repo.UpdateTitle(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTitle missing = %v", err)
	}
}

func TestConcurrentThreadsDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo()

	const perThread = 10
	threadA, _ := repo.CreateThread(ctx, "a")
	threadB, _ := repo.CreateThread(ctx, "b")

	var wg sync.WaitGroup
	for _, id := range []string{threadA.ID, threadB.ID} {
		wg.Add(1)
		go func(threadID string) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				if _, err := repo.AppendMessage(ctx, threadID, SenderUser, fmt.Sprintf("%s %d", threadID, i), AppendOptions{}); err != nil {
					t.Errorf("append on %s: %v", threadID, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{threadA.ID, threadB.ID} {
		got, err := repo.GetThread(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Messages) != perThread {
			t.Errorf("thread %s has %d messages, want %d", id, len(got.Messages), perThread)
		}
		for i, m := range got.Messages {
			if m.ThreadID != id {
				t.Errorf("thread %s position %d holds foreign message %s", id, i, m.ID)
			}
			if want := fmt.Sprintf("%s %d", id, i); m.Text != want {
				t.Errorf("thread %s position %d text = %q, want %q", id, i, m.Text, want)
			}
		}
	}
}

func TestThreadLocks(t *testing.T) {
	locks := NewThreadLocks()

	release, ok := locks.TryLock("t1")
	if !ok {
		t.Fatal("first TryLock failed")
	}
	if _, ok := locks.TryLock("t1"); ok {
		t.Error("second TryLock on held thread succeeded")
	}
	if other, ok := locks.TryLock("t2"); !ok {
		t.Error("TryLock on different thread blocked")
	} else {
		other()
	}
	release()
	if again, ok := locks.TryLock("t1"); !ok {
		t.Error("TryLock after release failed")
	} else {
		again()
	}
}

// faultStore passes writes through to the wrapped store but makes a
// configured number of leading Tx calls fail after their function ran,
// forcing a rollback of everything the function wrote.
type faultStore struct {
	graph.Store
	mu   sync.Mutex
	fail int
}

func (s *faultStore) Tx(ctx context.Context, fn func(tx graph.Store) error) error {
	s.mu.Lock()
	inject := s.fail > 0
	if inject {
		s.fail--
	}
	s.mu.Unlock()
	return s.Store.Tx(ctx, func(tx graph.Store) error {
		if err := fn(tx); err != nil {
			return err
		}
		if inject {
			return errors.New("write interrupted")
		}
		return nil
	})
}

func TestAppendTurnOutcomeAtomicity(t *testing.T) {
	ctx := context.Background()
	store := &faultStore{Store: graph.NewMemStore()}
	repo := NewRepository(store, log.NewNop())

	thread, err := repo.CreateThread(ctx, "atomic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AppendMessage(ctx, thread.ID, SenderUser, "question", AppendOptions{}); err != nil {
		t.Fatal(err)
	}

	steps := []ReasoningStep{
		{Number: 1, Reasoning: "search", ToolCalls: []ToolCall{{ToolName: "search_news", Attempt: 1}}},
	}

	store.mu.Lock()
	store.fail = 1
	store.mu.Unlock()
	if _, err := repo.AppendTurnOutcome(ctx, thread.ID, "answer", steps, nil, AppendOptions{}); err == nil {
		t.Fatal("interrupted outcome write did not error")
	}

	// The failed write must leave no trace: no agent message, no
	// dangling steps, no Tool upsert.
	got, err := repo.GetThread(ctx, thread.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("chain after failed write = %d messages, want 1", len(got.Messages))
	}
	for _, label := range []string{LabelReasoningStep, LabelToolCall, LabelTool} {
		nodes, _ := store.MatchNodes(ctx, label)
		if len(nodes) != 0 {
			t.Errorf("failed write left %d %s nodes", len(nodes), label)
		}
	}

	// The retry starts clean and lands the whole outcome at once.
	msg, err := repo.AppendTurnOutcome(ctx, thread.ID, "answer", steps, nil, AppendOptions{})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, err = repo.GetThread(ctx, thread.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("chain after retry = %d messages, want 2", len(got.Messages))
	}
	if got.Messages[1].ID != msg.ID || got.Messages[1].Sender != SenderAgent {
		t.Errorf("tail message = %+v", got.Messages[1])
	}
	persisted, err := repo.Steps(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 || len(persisted[0].ToolCalls) != 1 {
		t.Errorf("persisted trace = %+v", persisted)
	}
}
