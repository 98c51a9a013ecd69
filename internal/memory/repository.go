package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/johnymontana/memory-graph-workshop/internal/graph"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
)

// Repository persists conversation memory as a graph. Message order is
// the FIRST_MESSAGE / NEXT_MESSAGE chain, never timestamps; the thread
// node carries a cached tail pointer so appends do not walk the chain.
type Repository struct {
	store  graph.Store
	logger log.Logger
}

// NewRepository creates a repository over the given graph store.
func NewRepository(store graph.Store, logger log.Logger) *Repository {
	return &Repository{store: store, logger: logger}
}

// CreateThread creates an empty thread. A blank title is allowed; the
// orchestrator fills it in after the first exchange.
func (r *Repository) CreateThread(ctx context.Context, title string) (Thread, error) {
	now := time.Now().UTC()
	t := Thread{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.store.CreateNode(ctx, graph.Node{
		ID:    t.ID,
		Label: LabelThread,
		Props: map[string]any{
			"title":      t.Title,
			"created_at": encodeTime(now),
			"updated_at": encodeTime(now),
		},
	})
	if err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	r.logger.Debug("thread created", "thread_id", t.ID)
	return t, nil
}

// AppendOptions carries the write-once denormalized fields of an agent
// message.
type AppendOptions struct {
	StepsSummary string
	AgentContext string
}

// AppendMessage atomically creates the message, links it into the
// thread's chain, and refreshes the thread's timestamps and tail
// pointer. Partial application is impossible; the whole write is one
// transaction.
func (r *Repository) AppendMessage(ctx context.Context, threadID string, sender Sender, text string, opts AppendOptions) (Message, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		Sender:       sender,
		Text:         text,
		CreatedAt:    now,
		StepsSummary: opts.StepsSummary,
		AgentContext: opts.AgentContext,
	}

	err := r.store.Tx(ctx, func(tx graph.Store) error {
		return appendMessageTx(ctx, tx, threadID, msg, now)
	})
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// appendMessageTx links msg into the thread's chain inside the caller's
// transaction.
func appendMessageTx(ctx context.Context, tx graph.Store, threadID string, msg Message, now time.Time) error {
	thread, err := tx.GetNode(ctx, threadID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
		}
		return err
	}
	if thread.Label != LabelThread {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	props := map[string]any{
		"thread_id":  msg.ThreadID,
		"sender":     string(msg.Sender),
		"text":       msg.Text,
		"created_at": encodeTime(now),
	}
	if msg.StepsSummary != "" {
		props["steps_summary"] = msg.StepsSummary
	}
	if msg.AgentContext != "" {
		props["agent_context"] = msg.AgentContext
	}
	if err := tx.CreateNode(ctx, graph.Node{ID: msg.ID, Label: LabelMessage, Props: props}); err != nil {
		return err
	}

	tail := propString(thread.Props, "last_message_id")
	if tail == "" {
		if err := tx.CreateRelationship(ctx, RelFirstMessage, threadID, msg.ID); err != nil {
			return err
		}
	} else {
		if err := tx.CreateRelationship(ctx, RelNextMessage, tail, msg.ID); err != nil {
			return err
		}
	}

	return tx.UpdateNode(ctx, threadID, map[string]any{
		"last_message_id": msg.ID,
		"updated_at":      encodeTime(now),
		"last_message_at": encodeTime(now),
	})
}

// AppendReasoningSteps persists a message's reasoning trace: the
// NEXT_STEP chain, every tool call attempt, and the Tool upserts.
// toolDescriptions supplies descriptions for tools created on first
// use; missing entries leave the description blank. Step numbers come
// from the caller and are stored as given.
func (r *Repository) AppendReasoningSteps(ctx context.Context, messageID string, steps []ReasoningStep, toolDescriptions map[string]string) error {
	if len(steps) == 0 {
		return nil
	}
	now := time.Now().UTC()

	err := r.store.Tx(ctx, func(tx graph.Store) error {
		msg, err := tx.GetNode(ctx, messageID)
		if err != nil {
			if errors.Is(err, graph.ErrNodeNotFound) {
				return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
			}
			return err
		}
		threadID := propString(msg.Props, "thread_id")
		return r.appendStepsTx(ctx, tx, messageID, threadID, steps, toolDescriptions, now)
	})
	if err != nil {
		return fmt.Errorf("append reasoning steps: %w", err)
	}
	return nil
}

// appendStepsTx writes the step chain and tool calls inside the
// caller's transaction.
func (r *Repository) appendStepsTx(ctx context.Context, tx graph.Store, messageID, threadID string, steps []ReasoningStep, toolDescriptions map[string]string, now time.Time) error {
	prevStepID := ""
	for _, step := range steps {
		stepID := step.ID
		if stepID == "" {
			stepID = uuid.NewString()
		}
		err := tx.CreateNode(ctx, graph.Node{
			ID:    stepID,
			Label: LabelReasoningStep,
			Props: map[string]any{
				"message_id":  messageID,
				"thread_id":   threadID,
				"step_number": step.Number,
				"reasoning":   step.Reasoning,
				"created_at":  encodeTime(now),
			},
		})
		if err != nil {
			return err
		}
		if prevStepID == "" {
			err = tx.CreateRelationship(ctx, RelFirstStep, messageID, stepID)
		} else {
			err = tx.CreateRelationship(ctx, RelNextStep, prevStepID, stepID)
		}
		if err != nil {
			return err
		}
		prevStepID = stepID

		for ordinal, call := range step.ToolCalls {
			if err := r.writeToolCall(ctx, tx, stepID, ordinal, call, toolDescriptions, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// AppendTurnOutcome writes an agent message together with its reasoning
// steps, tool calls, and Tool upserts in a single transaction. Either
// the whole outcome lands in the graph or none of it does, so a failed
// write can be retried without leaving a step-less message in the
// chain.
func (r *Repository) AppendTurnOutcome(ctx context.Context, threadID, text string, steps []ReasoningStep, toolDescriptions map[string]string, opts AppendOptions) (Message, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		Sender:       SenderAgent,
		Text:         text,
		CreatedAt:    now,
		StepsSummary: opts.StepsSummary,
		AgentContext: opts.AgentContext,
	}

	err := r.store.Tx(ctx, func(tx graph.Store) error {
		if err := appendMessageTx(ctx, tx, threadID, msg, now); err != nil {
			return err
		}
		return r.appendStepsTx(ctx, tx, msg.ID, threadID, steps, toolDescriptions, now)
	})
	if err != nil {
		return Message{}, fmt.Errorf("append turn outcome: %w", err)
	}
	return msg, nil
}

func (r *Repository) writeToolCall(ctx context.Context, tx graph.Store, stepID string, ordinal int, call ToolCall, toolDescriptions map[string]string, now time.Time) error {
	callID := call.ID
	if callID == "" {
		callID = uuid.NewString()
	}
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return fmt.Errorf("marshal tool arguments: %w", err)
	}
	createdAt := call.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	err = tx.CreateNode(ctx, graph.Node{
		ID:    callID,
		Label: LabelToolCall,
		Props: map[string]any{
			"step_id":    stepID,
			"tool_name":  call.ToolName,
			"arguments":  string(args),
			"output":     call.Output,
			"attempt":    call.Attempt,
			"empty":      call.Empty,
			"ordinal":    ordinal,
			"created_at": encodeTime(createdAt),
		},
	})
	if err != nil {
		return err
	}
	if err := tx.CreateRelationship(ctx, RelUsesTool, stepID, callID); err != nil {
		return err
	}

	tool, err := tx.MergeNode(ctx, graph.MergeSpec{
		Label: LabelTool,
		Key:   "name",
		Value: call.ToolName,
		ID:    uuid.NewString(),
		Create: map[string]any{
			"description":  toolDescriptions[call.ToolName],
			"created_at":   encodeTime(now),
			"last_used_at": encodeTime(now),
			"usage_count":  1,
		},
		Match:     map[string]any{"last_used_at": encodeTime(now)},
		Increment: []string{"usage_count"},
	})
	if err != nil {
		return err
	}
	return tx.CreateRelationship(ctx, RelInstanceOf, callID, tool.ID)
}

// GetThread returns the thread with its messages in chain order. Order
// comes only from the FIRST_MESSAGE and NEXT_MESSAGE walk.
func (r *Repository) GetThread(ctx context.Context, threadID string) (Thread, error) {
	node, err := r.store.GetNode(ctx, threadID)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return Thread{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
		}
		return Thread{}, err
	}
	if node.Label != LabelThread {
		return Thread{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	t := threadFromNode(node)

	msgs, err := r.walkMessages(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	t.Messages = msgs
	return t, nil
}

func (r *Repository) walkMessages(ctx context.Context, threadID string) ([]Message, error) {
	var out []Message
	seen := make(map[string]bool)

	current, err := r.store.Neighbors(ctx, threadID, RelFirstMessage)
	if err != nil {
		return nil, err
	}
	for len(current) > 0 {
		node := current[0]
		if seen[node.ID] {
			return nil, fmt.Errorf("thread %s: message chain cycle at %s", threadID, node.ID)
		}
		seen[node.ID] = true
		out = append(out, messageFromNode(node))

		current, err = r.store.Neighbors(ctx, node.ID, RelNextMessage)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Steps returns a message's reasoning steps in NEXT_STEP order, each
// with its tool calls in write order.
func (r *Repository) Steps(ctx context.Context, messageID string) ([]ReasoningStep, error) {
	var out []ReasoningStep
	seen := make(map[string]bool)

	current, err := r.store.Neighbors(ctx, messageID, RelFirstStep)
	if err != nil {
		return nil, err
	}
	for len(current) > 0 {
		node := current[0]
		if seen[node.ID] {
			return nil, fmt.Errorf("message %s: step chain cycle at %s", messageID, node.ID)
		}
		seen[node.ID] = true

		step := ReasoningStep{
			ID:        node.ID,
			Number:    propInt(node.Props, "step_number"),
			Reasoning: propString(node.Props, "reasoning"),
		}
		calls, err := r.store.Neighbors(ctx, node.ID, RelUsesTool)
		if err != nil {
			return nil, err
		}
		step.ToolCalls = toolCallsFromNodes(calls)
		out = append(out, step)

		current, err = r.store.Neighbors(ctx, node.ID, RelNextStep)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListThreads returns all threads ordered by last activity, most recent
// first. Messages are not populated.
func (r *Repository) ListThreads(ctx context.Context) ([]Thread, error) {
	nodes, err := r.store.MatchNodes(ctx, LabelThread)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	out := make([]Thread, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, threadFromNode(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// LastActiveThread returns the most recently active thread.
func (r *Repository) LastActiveThread(ctx context.Context) (Thread, error) {
	threads, err := r.ListThreads(ctx)
	if err != nil {
		return Thread{}, err
	}
	if len(threads) == 0 {
		return Thread{}, ErrNotFound
	}
	return threads[0], nil
}

// UpdateTitle renames a thread.
func (r *Repository) UpdateTitle(ctx context.Context, threadID, title string) error {
	err := r.store.UpdateNode(ctx, threadID, map[string]any{
		"title":      title,
		"updated_at": encodeTime(time.Now().UTC()),
	})
	if errors.Is(err, graph.ErrNodeNotFound) {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	return err
}

// SetSummary stores the running summary used for context compression.
// The message chain itself is never truncated.
func (r *Repository) SetSummary(ctx context.Context, threadID, summary string) error {
	err := r.store.UpdateNode(ctx, threadID, map[string]any{"summary": summary})
	if errors.Is(err, graph.ErrNodeNotFound) {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	return err
}

// DeleteThread removes the thread and its messages, reasoning steps,
// and tool calls. Shared Tool nodes survive; only their INSTANCE_OF
// edges go away with the deleted tool calls.
func (r *Repository) DeleteThread(ctx context.Context, threadID string) error {
	msgs, err := r.walkMessages(ctx, threadID)
	if err != nil {
		return err
	}
	if _, err := r.store.GetNode(ctx, threadID); err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) {
			return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
		}
		return err
	}

	ids := []string{threadID}
	for _, m := range msgs {
		ids = append(ids, m.ID)
		steps, err := r.Steps(ctx, m.ID)
		if err != nil {
			return err
		}
		for _, s := range steps {
			ids = append(ids, s.ID)
			for _, c := range s.ToolCalls {
				ids = append(ids, c.ID)
			}
		}
	}
	if err := r.store.DeleteNodes(ctx, ids); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	r.logger.Info("thread deleted", "thread_id", threadID, "nodes", len(ids))
	return nil
}

// MemoryGraph exports the full graph for visualization.
func (r *Repository) MemoryGraph(ctx context.Context) ([]graph.Node, []graph.Relationship, error) {
	return r.store.Export(ctx)
}

func threadFromNode(n graph.Node) Thread {
	return Thread{
		ID:            n.ID,
		Title:         propString(n.Props, "title"),
		Summary:       propString(n.Props, "summary"),
		CreatedAt:     propTime(n.Props, "created_at"),
		UpdatedAt:     propTime(n.Props, "updated_at"),
		LastMessageAt: propTime(n.Props, "last_message_at"),
	}
}

func messageFromNode(n graph.Node) Message {
	return Message{
		ID:           n.ID,
		ThreadID:     propString(n.Props, "thread_id"),
		Sender:       Sender(propString(n.Props, "sender")),
		Text:         propString(n.Props, "text"),
		CreatedAt:    propTime(n.Props, "created_at"),
		StepsSummary: propString(n.Props, "steps_summary"),
		AgentContext: propString(n.Props, "agent_context"),
	}
}

func toolCallsFromNodes(nodes []graph.Node) []ToolCall {
	sort.Slice(nodes, func(i, j int) bool {
		return propInt(nodes[i].Props, "ordinal") < propInt(nodes[j].Props, "ordinal")
	})
	out := make([]ToolCall, 0, len(nodes))
	for _, n := range nodes {
		call := ToolCall{
			ID:        n.ID,
			ToolName:  propString(n.Props, "tool_name"),
			Output:    propString(n.Props, "output"),
			Attempt:   propInt(n.Props, "attempt"),
			Empty:     propBool(n.Props, "empty"),
			CreatedAt: propTime(n.Props, "created_at"),
		}
		if raw := propString(n.Props, "arguments"); raw != "" {
			_ = json.Unmarshal([]byte(raw), &call.Arguments)
		}
		out = append(out, call)
	}
	return out
}
