// Package agent runs the bounded reasoning and tool-calling loop per
// conversation turn and hands the outcome to the memory layers. The
// loop is an explicit state machine: Init, Reasoning, ToolExecution,
// Evaluation, then Responding and Done. Independent turns on different
// threads run concurrently; a turn on a busy thread is rejected.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/johnymontana/memory-graph-workshop/internal/log"
	"github.com/johnymontana/memory-graph-workshop/internal/memory"
	"github.com/johnymontana/memory-graph-workshop/internal/preferences"
	"github.com/johnymontana/memory-graph-workshop/internal/tools"
)

// Options tunes the orchestrator loop.
type Options struct {
	// Model answers and reasons; SmallModel handles titles and
	// summaries. SmallModel falls back to Model when empty.
	Model      string
	SmallModel string

	// MaxIterations caps reasoning passes per turn.
	MaxIterations int

	// ToolRetries caps attempts per requested tool call, escalating
	// parameters after each empty result.
	ToolRetries int

	// RecentWindow is how many trailing messages enter the context
	// verbatim; older ones are covered by the thread summary.
	RecentWindow int

	// SummarizeThreshold is the message count past which the thread
	// summary is refreshed after a turn.
	SummarizeThreshold int

	// LLMTimeout bounds every model call.
	LLMTimeout time.Duration

	// RequestsPerMin rate-limits model calls across all turns.
	RequestsPerMin float64

	// Evaluate decides whether an iteration's tool results suffice to
	// answer. Nil means "every result non-empty".
	Evaluate func(results []tools.Result) bool
}

func (o *Options) fill() {
	if o.SmallModel == "" {
		o.SmallModel = o.Model
	}
	if o.MaxIterations < 1 {
		o.MaxIterations = 1
	}
	if o.ToolRetries < 1 {
		o.ToolRetries = 3
	}
	if o.RecentWindow < 1 {
		o.RecentWindow = 5
	}
	if o.SummarizeThreshold < 1 {
		o.SummarizeThreshold = 10
	}
	if o.LLMTimeout <= 0 {
		o.LLMTimeout = 30 * time.Second
	}
	if o.RequestsPerMin <= 0 {
		o.RequestsPerMin = 60
	}
	if o.Evaluate == nil {
		o.Evaluate = func(results []tools.Result) bool {
			for _, r := range results {
				if r.Empty() {
					return false
				}
			}
			return true
		}
	}
}

// Agent orchestrates turns.
type Agent struct {
	g         *genkit.Genkit
	repo      *memory.Repository
	prefs     *preferences.Store
	extractor *preferences.Extractor
	registry  *tools.Registry
	toolRefs  []ai.ToolRef
	locks     *memory.ThreadLocks
	limiter   *rate.Limiter
	logger    log.Logger
	opts      Options

	background sync.WaitGroup
}

// New creates an agent. extractor may be nil, which disables
// preference learning regardless of the per-turn memory flag.
func New(g *genkit.Genkit, repo *memory.Repository, prefs *preferences.Store, extractor *preferences.Extractor, registry *tools.Registry, toolRefs []ai.ToolRef, logger log.Logger, opts Options) *Agent {
	opts.fill()
	return &Agent{
		g:         g,
		repo:      repo,
		prefs:     prefs,
		extractor: extractor,
		registry:  registry,
		toolRefs:  toolRefs,
		locks:     memory.NewThreadLocks(),
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerMin/60), 1),
		logger:    logger,
		opts:      opts,
	}
}

// TurnRequest is one submitted user message.
type TurnRequest struct {
	ThreadID      string
	Message       string
	MemoryEnabled bool
}

// Snapshot is the agent-context record persisted with the response.
type Snapshot struct {
	Model              string   `json:"model"`
	MemoryEnabled      bool     `json:"memory_enabled"`
	PreferencesApplied int      `json:"preferences_applied"`
	SummaryUsed        bool     `json:"summary_used"`
	Tools              []string `json:"tools"`
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	ThreadID   string                 `json:"thread_id"`
	Response   string                 `json:"response"`
	Steps      []memory.ReasoningStep `json:"reasoning_steps"`
	Context    Snapshot               `json:"agent_context"`
	Iterations int                    `json:"reasoning_iterations"`
	Retries    int                    `json:"retries_performed"`

	// Persisted is false when the memory write failed after retry; the
	// answer is still valid, only its record is lost.
	Persisted bool `json:"persisted"`
}

// Run executes one turn. Returns memory.ErrThreadBusy when another
// turn holds the thread and memory.ErrNotFound for an unknown thread.
func (a *Agent) Run(ctx context.Context, req TurnRequest) (TurnResult, error) {
	thread, created, err := a.resolveThread(ctx, req.ThreadID)
	if err != nil {
		return TurnResult{}, err
	}

	release, ok := a.locks.TryLock(thread.ID)
	if !ok {
		return TurnResult{}, fmt.Errorf("thread %s: %w", thread.ID, memory.ErrThreadBusy)
	}
	defer release()

	turn := &turnState{
		req:     req,
		thread:  thread,
		created: created,
	}
	turn.persisted = a.persistUserMessage(ctx, turn)

	if err := a.runLoop(ctx, turn); err != nil {
		return TurnResult{}, err
	}

	a.persistOutcome(ctx, turn)
	a.afterTurn(turn)

	return TurnResult{
		ThreadID:   thread.ID,
		Response:   turn.response,
		Steps:      turn.steps,
		Context:    turn.snapshot,
		Iterations: turn.iterations,
		Retries:    turn.retries,
		Persisted:  turn.persisted,
	}, nil
}

// Wait blocks until background work (summaries, titles, preference
// extraction) finishes. Intended for shutdown and tests.
func (a *Agent) Wait() {
	a.background.Wait()
}

type turnState struct {
	req     TurnRequest
	thread  memory.Thread
	created bool

	steps      []memory.ReasoningStep
	response   string
	snapshot   Snapshot
	iterations int
	retries    int
	persisted  bool
}

func (a *Agent) resolveThread(ctx context.Context, threadID string) (memory.Thread, bool, error) {
	if threadID == "" {
		t, err := a.repo.CreateThread(ctx, "")
		if err != nil {
			return memory.Thread{}, false, err
		}
		return t, true, nil
	}
	t, err := a.repo.GetThread(ctx, threadID)
	if err != nil {
		return memory.Thread{}, false, err
	}
	return t, false, nil
}

// persistUserMessage writes the incoming message before reasoning
// starts. A failed write is retried once and then degrades the turn to
// not-persisted rather than failing it.
func (a *Agent) persistUserMessage(ctx context.Context, turn *turnState) bool {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		msg, err := a.repo.AppendMessage(ctx, turn.thread.ID, memory.SenderUser, turn.req.Message, memory.AppendOptions{})
		if err == nil {
			turn.thread.Messages = append(turn.thread.Messages, msg)
			return true
		}
		lastErr = err
	}
	a.logger.Error("user message not persisted", "thread_id", turn.thread.ID, "error", lastErr)
	return false
}

// persistOutcome writes the agent message and its reasoning trace at
// the Done transition as one transaction, with one retry. A failed
// attempt rolls back entirely, so the retry cannot duplicate the
// message.
func (a *Agent) persistOutcome(ctx context.Context, turn *turnState) {
	if !turn.persisted {
		return
	}

	snapshotJSON, _ := json.Marshal(turn.snapshot)
	opts := memory.AppendOptions{AgentContext: string(snapshotJSON)}
	if len(turn.steps) > 0 {
		stepsJSON, _ := json.Marshal(turn.steps)
		opts.StepsSummary = string(stepsJSON)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		msg, err := a.repo.AppendTurnOutcome(ctx, turn.thread.ID, turn.response, turn.steps, a.registry.Descriptions(), opts)
		if err != nil {
			lastErr = err
			continue
		}
		turn.thread.Messages = append(turn.thread.Messages, msg)
		return
	}
	turn.persisted = false
	a.logger.Error("turn not persisted", "thread_id", turn.thread.ID, "error", lastErr)
}

// afterTurn fires the post-turn background work: preference
// extraction, auto-titling, and summarization. None of it can fail the
// turn; each job gets its own bounded context.
func (a *Agent) afterTurn(turn *turnState) {
	if turn.req.MemoryEnabled && a.extractor != nil {
		a.spawn(func(ctx context.Context) {
			candidates, err := a.extractor.Extract(ctx, turn.req.Message, turn.response)
			if err != nil {
				a.logger.Warn("preference extraction failed", "error", err)
				return
			}
			if len(candidates) == 0 {
				return
			}
			inserted, updated, err := a.prefs.Apply(ctx, candidates)
			if err != nil {
				a.logger.Warn("preference merge failed", "error", err)
				return
			}
			a.logger.Debug("preferences updated", "inserted", inserted, "updated", updated)
		})
	}

	if turn.created && turn.persisted {
		a.spawn(func(ctx context.Context) {
			a.autoTitle(ctx, turn.thread.ID, turn.req.Message, turn.response)
		})
	}

	if len(turn.thread.Messages) > a.opts.SummarizeThreshold {
		a.spawn(func(ctx context.Context) {
			a.summarize(ctx, turn.thread)
		})
	}
}

func (a *Agent) spawn(fn func(ctx context.Context)) {
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*a.opts.LLMTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// generate is the single funnel for model calls: rate limit, then a
// bounded call.
func (a *Agent) generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	callCtx, cancel := context.WithTimeout(ctx, a.opts.LLMTimeout)
	defer cancel()
	return genkit.Generate(callCtx, a.g, opts...)
}
