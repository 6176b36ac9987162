package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
	"github.com/kirillkom/library-rag/internal/infrastructure/resilience"
)

const (
	operationEmbed   = "embed"
	operationChat    = "chat"
	operationAnalyze = "analyze"
)

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, chatModel, embedModel string) *Client {
	return NewWithOptions(baseURL, chatModel, embedModel, Options{})
}

func NewWithOptions(baseURL, chatModel, embedModel string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.post(ctx, "/api/embed", request, &response, operationEmbed); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: expected %d vectors, got %d", len(texts), len(response.Embeddings))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error) {
	return c.client.chat(ctx, operationChat, messages, opts)
}

// QueryAnalyzer asks the chat model for entities and topics in a query.
type QueryAnalyzer struct {
	client *Client
}

func NewQueryAnalyzer(client *Client) *QueryAnalyzer {
	return &QueryAnalyzer{client: client}
}

func (a *QueryAnalyzer) AnalyzeQuery(ctx context.Context, query string, history []domain.ChatMessage) (domain.QueryAnalysis, error) {
	respText, err := a.client.chat(ctx, operationAnalyze, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: queryAnalysisInstructions},
		{Role: domain.RoleUser, Content: buildQueryAnalysisPrompt(query, history)},
	}, domain.CompletionOptions{JSON: true, MaxTokens: 256})
	if err != nil {
		return domain.QueryAnalysis{}, err
	}

	var result domain.QueryAnalysis
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &result); err != nil {
		return domain.QueryAnalysis{}, fmt.Errorf("parse query analysis json: %w", err)
	}
	result.Entities = compactStrings(result.Entities)
	result.Topics = compactStrings(result.Topics)
	return result, nil
}

func (c *Client) chat(ctx context.Context, operation string, messages []domain.ChatMessage, opts domain.CompletionOptions) (string, error) {
	model := opts.Model
	if strings.TrimSpace(model) == "" {
		model = c.chatModel
	}
	reqBody := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   false,
	}
	if opts.JSON {
		reqBody["format"] = "json"
	}
	if opts.MaxTokens > 0 {
		reqBody["options"] = map[string]any{"num_predict": opts.MaxTokens}
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := c.post(ctx, "/api/chat", reqBody, &response, operation); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func compactStrings(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var (
	_ ports.Embedder      = (*Embedder)(nil)
	_ ports.Completer     = (*Completer)(nil)
	_ ports.QueryAnalyzer = (*QueryAnalyzer)(nil)
)
