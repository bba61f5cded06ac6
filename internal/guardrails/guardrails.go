// Package guardrails screens chat questions before they reach retrieval and
// the model.
package guardrails

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/nikhilbhutani/medibot/internal/llm"
	"github.com/nikhilbhutani/medibot/internal/rag"
)

// RefusalAnswer is returned in place of a model answer for a blocked question.
const RefusalAnswer = "I can only help with questions about the diabetes information in my knowledge base. Please rephrase your question."

// DefaultMaxQuestionLength is measured in characters, not bytes.
const DefaultMaxQuestionLength = 4000

// Result holds the outcome of a check.
type Result struct {
	Allowed bool
	Flags   []string
	Reason  string
}

// Guard inspects a question.
type Guard interface {
	Name() string
	Check(text string) Result
}

// Chain runs guards in order and stops at the first block.
type Chain []Guard

// Default returns the length and injection guards.
func Default() Chain {
	return Chain{NewLengthGuard(DefaultMaxQuestionLength), NewInjectionGuard()}
}

func (c Chain) Check(text string) Result {
	var flags []string
	for _, g := range c {
		r := g.Check(text)
		flags = append(flags, r.Flags...)
		if !r.Allowed {
			return Result{Allowed: false, Flags: flags, Reason: fmt.Sprintf("blocked by %s: %s", g.Name(), r.Reason)}
		}
	}
	return Result{Allowed: true, Flags: flags}
}

// LengthGuard blocks questions longer than a character limit.
type LengthGuard struct {
	limit int
}

func NewLengthGuard(limit int) *LengthGuard {
	return &LengthGuard{limit: limit}
}

func (g *LengthGuard) Name() string { return "question_length" }

func (g *LengthGuard) Check(text string) Result {
	if n := utf8.RuneCountInString(text); n > g.limit {
		return Result{
			Reason: fmt.Sprintf("question has %d characters, limit is %d", n, g.limit),
			Flags:  []string{"question_too_long"},
		}
	}
	return Result{Allowed: true}
}

// HistoryChain screens chat history turns. Turns are not length-limited since
// they include earlier model answers.
func HistoryChain() Chain {
	return Chain{NewInjectionGuard()}
}

// GuardedAnswerer answers blocked questions with RefusalAnswer and passes the
// rest to inner. History turns that fail the history chain are dropped, so a
// blocked question echoed back by the client does not poison later requests.
type GuardedAnswerer struct {
	inner    rag.Answerer
	question Chain
	history  Chain
	logger   *slog.Logger
}

func NewGuardedAnswerer(inner rag.Answerer, question, history Chain, logger *slog.Logger) *GuardedAnswerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedAnswerer{inner: inner, question: question, history: history, logger: logger}
}

func (a *GuardedAnswerer) Answer(ctx context.Context, req rag.AnswerRequest) (*rag.Answer, error) {
	if r := a.question.Check(req.Question); !r.Allowed {
		a.logger.Warn("question blocked", "reason", r.Reason, "flags", r.Flags)
		return &rag.Answer{Answer: RefusalAnswer, Sources: []string{}}, nil
	}
	req.History = a.screenHistory(req.History)
	return a.inner.Answer(ctx, req)
}

func (a *GuardedAnswerer) screenHistory(history []llm.Message) []llm.Message {
	if len(history) == 0 {
		return history
	}
	kept := make([]llm.Message, 0, len(history))
	for i, m := range history {
		if r := a.history.Check(m.Content); !r.Allowed {
			a.logger.Warn("history turn dropped", "turn", i, "role", m.Role, "reason", r.Reason, "flags", r.Flags)
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
