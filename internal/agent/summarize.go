package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"

	"github.com/johnymontana/memory-graph-workshop/internal/memory"
)

// summaryPrompt compresses older turns. %s placeholders: prior
// summary (may be empty), transcript.
const summaryPrompt = `Condense the following conversation into a short summary that preserves what the user asked about, what was found, and any stated preferences. Merge with the prior summary when one is given. Plain prose, at most 150 words.

Prior summary:
%s

Conversation:
%s

Summary:`

// titlePrompt names a new thread. %s placeholders: user message,
// agent response.
const titlePrompt = `Give this news conversation a title of 3 to 5 words. Output only the title, no quotes.

User: %s
Assistant: %s

Title:`

// summarize refreshes the thread's running summary from everything but
// the most recent window. The persisted message chain is untouched;
// the summary only changes what future turns see as context.
func (a *Agent) summarize(ctx context.Context, thread memory.Thread) {
	msgs := thread.Messages
	if len(msgs) <= a.opts.SummarizeThreshold {
		return
	}
	older := msgs[:len(msgs)-a.opts.RecentWindow]

	var transcript strings.Builder
	for _, m := range older {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Sender, m.Text)
	}

	resp, err := a.generate(ctx,
		ai.WithModelName(a.opts.SmallModel),
		ai.WithPrompt(fmt.Sprintf(summaryPrompt, thread.Summary, transcript.String())),
	)
	if err != nil {
		a.logger.Warn("summarization failed", "thread_id", thread.ID, "error", err)
		return
	}
	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return
	}
	if err := a.repo.SetSummary(ctx, thread.ID, summary); err != nil {
		a.logger.Warn("storing summary failed", "thread_id", thread.ID, "error", err)
		return
	}
	a.logger.Debug("thread summarized", "thread_id", thread.ID, "messages", len(older))
}

// autoTitle names a thread after its first exchange.
func (a *Agent) autoTitle(ctx context.Context, threadID, userText, agentText string) {
	resp, err := a.generate(ctx,
		ai.WithModelName(a.opts.SmallModel),
		ai.WithPrompt(fmt.Sprintf(titlePrompt, userText, agentText)),
	)
	if err != nil {
		a.logger.Warn("title generation failed", "thread_id", threadID, "error", err)
		return
	}
	title := strings.Trim(strings.TrimSpace(resp.Text()), `"`)
	if title == "" {
		return
	}
	if err := a.repo.UpdateTitle(ctx, threadID, title); err != nil {
		a.logger.Warn("storing title failed", "thread_id", threadID, "error", err)
	}
}
