package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/johnymontana/memory-graph-workshop/internal/memory"
	"github.com/johnymontana/memory-graph-workshop/internal/preferences"
	"github.com/johnymontana/memory-graph-workshop/internal/tools"
)

const systemPrompt = `You are a news assistant. You answer questions about current events using the news database tools available to you. Ground every claim in tool results; when the tools return nothing relevant, say so instead of guessing. Keep answers focused and cite article titles when you use them.`

// respondingPrompt folds accumulated tool outputs into the final
// answer. %s placeholders: question, tool results.
const respondingPrompt = `Answer the user's question using only the tool results below.

Question: %s

Tool results:
%s

Answer in natural language. If the results are empty or irrelevant, say what you looked for and that nothing was found.`

// runLoop drives the turn state machine from Init through Responding.
// Persistence (Done) is the caller's job.
func (a *Agent) runLoop(ctx context.Context, turn *turnState) error {
	history, sys := a.assembleContext(ctx, turn)

	var folded []string // tool outputs carried across iterations

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		turn.iterations++

		// Reasoning: the model either answers directly or requests
		// tool calls, which we execute ourselves.
		msgs := append([]*ai.Message{}, history...)
		if len(folded) > 0 {
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(
				"Tool results so far:\n"+strings.Join(folded, "\n"))))
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(
				"The results above were insufficient. Choose different tools or parameters to answer the original question.")))
		}
		resp, err := a.generate(ctx,
			ai.WithModelName(a.opts.Model),
			ai.WithSystem(sys),
			ai.WithMessages(msgs...),
			ai.WithTools(a.toolRefs...),
			ai.WithReturnToolRequests(true),
		)
		if err != nil {
			return fmt.Errorf("reasoning call: %w", err)
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			// Direct answer, no procedural record for this pass.
			turn.response = strings.TrimSpace(resp.Text())
			return nil
		}

		// ToolExecution: run every requested call with the retry and
		// escalation policy, recording all attempts.
		step := memory.ReasoningStep{Number: turn.iterations, Reasoning: strings.TrimSpace(resp.Text())}
		var results []tools.Result
		for _, req := range requests {
			calls, result, err := a.executeWithRetry(ctx, req)
			step.ToolCalls = append(step.ToolCalls, calls...)
			turn.retries += len(calls) - 1
			if err != nil {
				a.logger.Warn("tool failed after retries", "tool", req.Name, "error", err)
				result = tools.Result{}
			}
			results = append(results, result)
			folded = append(folded, fmt.Sprintf("%s -> %s", req.Name, result.MarshalOutput()))
		}
		turn.steps = append(turn.steps, step)

		// Evaluation: loop back only while under the iteration budget.
		if !a.opts.Evaluate(results) && turn.iterations < a.opts.MaxIterations {
			continue
		}
		break
	}

	// Responding: fold everything into the final answer.
	resp, err := a.generate(ctx,
		ai.WithModelName(a.opts.Model),
		ai.WithSystem(sys),
		ai.WithPrompt(fmt.Sprintf(respondingPrompt, turn.req.Message, strings.Join(folded, "\n"))),
	)
	if err != nil {
		// Degrade to a textual failure rather than dropping the turn.
		a.logger.Error("responding call failed", "error", err)
		turn.response = "I found some results but could not compose an answer. Please try again."
		return nil
	}
	turn.response = strings.TrimSpace(resp.Text())
	return nil
}

// executeWithRetry runs one requested tool call with up to
// opts.ToolRetries attempts, escalating parameters after each empty
// result. Every attempt is recorded; retries are part of the
// procedural record, not discarded.
func (a *Agent) executeWithRetry(ctx context.Context, req *ai.ToolRequest) ([]memory.ToolCall, tools.Result, error) {
	def, ok := a.registry.Get(req.Name)
	if !ok {
		call := memory.ToolCall{
			ToolName: req.Name,
			Output:   fmt.Sprintf("unknown tool %q", req.Name),
			Attempt:  1,
			Empty:    true,
		}
		return []memory.ToolCall{call}, tools.Result{}, fmt.Errorf("unknown tool %q", req.Name)
	}

	args, _ := req.Input.(map[string]any)
	var calls []memory.ToolCall
	var lastErr error

	for attempt := 1; attempt <= a.opts.ToolRetries; attempt++ {
		result, err := def.Run(ctx, args)

		call := memory.ToolCall{
			ToolName:  req.Name,
			Arguments: args,
			Attempt:   attempt,
		}
		if err != nil {
			call.Output = "error: " + err.Error()
			call.Empty = true
			lastErr = err
		} else {
			call.Output = result.MarshalOutput()
			call.Empty = result.Empty()
			lastErr = nil
		}
		calls = append(calls, call)

		if err == nil && !result.Empty() {
			return calls, result, nil
		}
		if err := ctx.Err(); err != nil {
			return calls, tools.Result{}, err
		}
		if attempt < a.opts.ToolRetries && err == nil && def.Escalate != nil {
			args = def.Escalate(args)
		}
	}
	if lastErr != nil {
		return calls, tools.Result{}, lastErr
	}
	return calls, tools.Result{}, nil
}

// assembleContext builds the Init state's context: system prompt plus
// preference summary, the thread summary, and the recent message
// window as conversation history.
func (a *Agent) assembleContext(ctx context.Context, turn *turnState) (history []*ai.Message, system string) {
	sys := systemPrompt

	if turn.req.MemoryEnabled && a.prefs != nil {
		prefs, err := a.prefs.List(ctx)
		if err != nil {
			a.logger.Warn("loading preferences failed", "error", err)
		} else if block := preferences.FormatForPrompt(prefs); block != "" {
			sys += "\n\n" + block
			turn.snapshot.PreferencesApplied = len(prefs)
		}
	}
	if turn.thread.Summary != "" {
		sys += "\n\nSummary of the earlier conversation:\n" + turn.thread.Summary
		turn.snapshot.SummaryUsed = true
	}

	turn.snapshot.Model = a.opts.Model
	turn.snapshot.MemoryEnabled = turn.req.MemoryEnabled
	turn.snapshot.Tools = a.registry.Names()

	// Recent window, excluding the user message persisted for this
	// turn; it is re-added last so it is always present even when the
	// initial persist failed.
	msgs := turn.thread.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Sender == memory.SenderUser && msgs[n-1].Text == turn.req.Message {
		msgs = msgs[:n-1]
	}
	if len(msgs) > a.opts.RecentWindow {
		msgs = msgs[len(msgs)-a.opts.RecentWindow:]
	}
	for _, m := range msgs {
		part := ai.NewTextPart(m.Text)
		if m.Sender == memory.SenderAgent {
			history = append(history, ai.NewModelMessage(part))
		} else {
			history = append(history, ai.NewUserMessage(part))
		}
	}
	history = append(history, ai.NewUserMessage(ai.NewTextPart(turn.req.Message)))
	return history, sys
}
