package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/nikhilbhutani/medibot/internal/llm"
	"github.com/nikhilbhutani/medibot/internal/vectorstore"
	"github.com/nikhilbhutani/medibot/pkg/tokenizer"
)

const systemPrompt = "You are MediBot, a friendly, helpful, and empathetic medical assistant specializing in diabetes. " +
	"Your goal is to provide clear, concise, and accurate information to users based *only* on the provided context. " +
	"If the context does not contain enough information to answer the question, state that you don't have enough information. " +
	"When answering, be as thorough as possible by including all relevant details from the context. " +
	"If the answer involves a list or multiple points, present them clearly using **standard Markdown bullet points** or numbered lists. " +
	"Avoid making up information or providing medical advice beyond what is explicitly stated in the context. " +
	"Context: "

// NoInformationAnswer is returned without calling the model when nothing was retrieved.
const NoInformationAnswer = "I don't have enough information in my knowledge base to answer that question."

const DefaultMaxHistoryTurns = 10

type ComposerOptions struct {
	Provider        string
	Model           string
	Temperature     float64
	TopK            int
	MaxHistoryTurns int
}

// Composer answers questions from retrieved context with a single model call.
type Composer struct {
	searcher Searcher
	gateway  llm.Gateway
	opts     ComposerOptions
	logger   *slog.Logger
}

func NewComposer(searcher Searcher, gw llm.Gateway, opts ComposerOptions, logger *slog.Logger) *Composer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = DefaultMaxHistoryTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{searcher: searcher, gateway: gw, opts: opts, logger: logger}
}

type AnswerRequest struct {
	Question string
	History  []llm.Message
}

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

func (c *Composer) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	matches, err := c.searcher.Retrieve(ctx, req.Question, c.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(matches) == 0 {
		return &Answer{Answer: NoInformationAnswer, Sources: []string{}}, nil
	}

	messages := c.buildMessages(req, matches)
	c.logger.Debug("composing answer",
		"chunks", len(matches),
		"history_turns", len(messages)-2,
		"prompt_tokens_est", promptTokens(messages),
	)

	resp, err := c.gateway.Chat(ctx, llm.ChatRequest{
		Provider:    c.opts.Provider,
		Model:       c.opts.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	c.logger.Debug("answer generated",
		"provider", resp.Provider,
		"model", resp.Model,
		"total_tokens", resp.TotalTokens,
		"latency_ms", resp.LatencyMs,
	)

	return &Answer{
		Answer:  resp.Content,
		Sources: SourceLabels(matches),
	}, nil
}

func (c *Composer) buildMessages(req AnswerRequest, matches []vectorstore.Match) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt + buildContext(matches)}}
	messages = append(messages, trimHistory(req.History, c.opts.MaxHistoryTurns)...)
	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Question})
}

func buildContext(matches []vectorstore.Match) string {
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Metadata.Text
	}
	return strings.Join(texts, "\n\n")
}

// trimHistory keeps the last limit user/assistant turns, dropping anything with
// another role or no content.
func trimHistory(history []llm.Message, limit int) []llm.Message {
	var kept []llm.Message
	for _, m := range history {
		if (m.Role != llm.RoleUser && m.Role != llm.RoleAssistant) || strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	return kept
}

// SourceLabels renders one "{source}, Page {page}" label per match, without
// duplicates, sorted.
func SourceLabels(matches []vectorstore.Match) []string {
	seen := make(map[string]struct{}, len(matches))
	labels := make([]string, 0, len(matches))
	for _, m := range matches {
		label := fmt.Sprintf("Page %d", m.Metadata.Page)
		if m.Metadata.Source != "" {
			label = m.Metadata.Source + ", " + label
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func promptTokens(messages []llm.Message) int {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Content
	}
	return tokenizer.CountAll(texts...)
}

// Answerer is anything that can answer a question; Composer and its cached
// wrapper both satisfy it.
type Answerer interface {
	Answer(ctx context.Context, req AnswerRequest) (*Answer, error)
}
