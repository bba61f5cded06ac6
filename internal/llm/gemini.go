package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/medibot/internal/apperr"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider talks to the Google Generative Language REST API.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiProvider(apiKey string) *GeminiProvider {
	return NewGeminiProviderWithBaseURL(apiKey, defaultGeminiBaseURL)
}

func NewGeminiProviderWithBaseURL(apiKey, baseURL string) *GeminiProvider {
	return &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiGenerateReq struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResp struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
	ResponseID   string `json:"responseId"`
}

func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	gReq := geminiGenerateReq{}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			gReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case RoleAssistant:
			gReq.Contents = append(gReq.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			gReq.Contents = append(gReq.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	gc := &geminiGenerationConfig{MaxOutputTokens: req.MaxTokens, StopSequences: req.Stop}
	if req.Temperature > 0 {
		t := req.Temperature
		gc.Temperature = &t
	}
	if req.TopP > 0 {
		tp := req.TopP
		gc.TopP = &tp
	}
	gReq.GenerationConfig = gc

	var gResp geminiGenerateResp
	if err := p.post(ctx, "gemini chat", req.Model, "generateContent", gReq, &gResp); err != nil {
		return nil, err
	}
	if len(gResp.Candidates) == 0 {
		return nil, apperr.Rejected("gemini chat", errors.New("response has no candidates"))
	}

	var sb strings.Builder
	for _, part := range gResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}

	model := gResp.ModelVersion
	if model == "" {
		model = req.Model
	}
	usage := gResp.UsageMetadata

	return &ChatResponse{
		ID:           gResp.ResponseID,
		Provider:     "gemini",
		Model:        model,
		Content:      sb.String(),
		InputTokens:  usage.PromptTokenCount,
		OutputTokens: usage.CandidatesTokenCount,
		TotalTokens:  usage.TotalTokenCount,
		CostUSD:      CalculateCost(req.Model, usage.PromptTokenCount, usage.CandidatesTokenCount),
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

type geminiEmbedContentReq struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType,omitempty"`
	OutputDimensionality int           `json:"outputDimensionality,omitempty"`
}

type geminiBatchEmbedReq struct {
	Requests []geminiEmbedContentReq `json:"requests"`
}

type geminiBatchEmbedResp struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func geminiTaskType(t EmbeddingTask) string {
	switch t {
	case TaskDocument:
		return "RETRIEVAL_DOCUMENT"
	case TaskQuery:
		return "RETRIEVAL_QUERY"
	default:
		return ""
	}
}

func (p *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	model := req.Model
	if model == "" {
		model = "text-embedding-004"
	}

	bReq := geminiBatchEmbedReq{Requests: make([]geminiEmbedContentReq, len(req.Input))}
	for i, text := range req.Input {
		bReq.Requests[i] = geminiEmbedContentReq{
			Model:                "models/" + model,
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			TaskType:             geminiTaskType(req.Task),
			OutputDimensionality: req.Dimensions,
		}
	}

	var bResp geminiBatchEmbedResp
	if err := p.post(ctx, "gemini embedding", model, "batchEmbedContents", bReq, &bResp); err != nil {
		return nil, err
	}
	if len(bResp.Embeddings) != len(req.Input) {
		return nil, apperr.Rejected("gemini embedding",
			fmt.Errorf("got %d embeddings for %d inputs", len(bResp.Embeddings), len(req.Input)))
	}

	embeddings := make([][]float32, len(bResp.Embeddings))
	for i, e := range bResp.Embeddings {
		embeddings[i] = e.Values
	}

	return &EmbeddingResponse{
		Provider:   "gemini",
		Model:      model,
		Embeddings: embeddings,
	}, nil
}

func (p *GeminiProvider) post(ctx context.Context, op, model, method string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return apperr.Rejected(op, err)
	}
	url := fmt.Sprintf("%s/models/%s:%s", p.baseURL, model, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperr.Config(op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Transient(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.Transient(op, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.FromStatus(op, resp.StatusCode, fmt.Errorf("status %d: %s", resp.StatusCode, geminiErrorMessage(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Transient(op, fmt.Errorf("decode: %w", err))
	}
	return nil
}

func geminiErrorMessage(raw []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if len(raw) > 512 {
		raw = raw[:512]
	}
	return strings.TrimSpace(string(raw))
}
