package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
)

type ChatOptions struct {
	HistoryTurns int
	MaxTokens    int
	Model        string
}

type ChatUseCase struct {
	retrieval *RetrievalUseCase
	completer ports.Completer
	events    ports.RetrievalEventPublisher
	opts      ChatOptions
	logger    *slog.Logger
}

func NewChatUseCase(
	retrieval *RetrievalUseCase,
	completer ports.Completer,
	events ports.RetrievalEventPublisher,
	opts ChatOptions,
	logger *slog.Logger,
) *ChatUseCase {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatUseCase{
		retrieval: retrieval,
		completer: completer,
		events:    events,
		opts:      opts,
		logger:    logger,
	}
}

func (uc *ChatUseCase) Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	return uc.retrieval.Retrieve(ctx, query)
}

func (uc *ChatUseCase) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	start := time.Now()
	history := trimHistory(req.History, uc.opts.HistoryTurns)

	result, err := uc.retrieval.Retrieve(ctx, domain.RetrievalQuery{
		Text:    req.Message,
		History: history,
		Page:    req.Page,
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: buildSystemPrompt(result)})
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: strings.TrimSpace(req.Message)})

	answer, err := uc.completer.Complete(ctx, messages, domain.CompletionOptions{
		Model:     uc.opts.Model,
		MaxTokens: uc.opts.MaxTokens,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeneration, "complete answer", err)
	}

	uc.publish(ctx, result, time.Since(start))

	return &domain.ChatResponse{
		Response:                answer,
		Sources:                 toSources(result.Documents),
		DocumentsFound:          len(result.Documents),
		TotalDocumentsAvailable: result.TotalAvailable,
		RetrievalMethod:         string(result.Strategy),
		HasMore:                 result.HasMore,
		Remaining:               result.Remaining,
		Warning:                 result.Warning,
		Retrieval:               result,
	}, nil
}

func (uc *ChatUseCase) publish(ctx context.Context, result *domain.RetrievalResult, elapsed time.Duration) {
	if uc.events == nil {
		return
	}
	event := domain.RetrievalEvent{
		ID:               uuid.NewString(),
		QueryType:        result.Strategy,
		Confidence:       result.Classification.Confidence,
		Filter:           string(result.Classification.Filter),
		Strategies:       result.Strategies,
		FailedStrategies: result.FailedStrategies,
		DocumentsFound:   len(result.Documents),
		TotalAvailable:   result.TotalAvailable,
		DurationMS:       float64(elapsed.Microseconds()) / 1000.0,
		CreatedAt:        time.Now().UTC(),
	}
	if err := uc.events.PublishRetrieval(ctx, event); err != nil {
		uc.logger.Warn("retrieval_event_publish_failed", "event_id", event.ID, "error", err)
	}
}

// trimHistory keeps the most recent user/assistant turns with content.
func trimHistory(history []domain.ChatMessage, limit int) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history))
	for _, msg := range history {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role != domain.RoleUser && role != domain.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		out = append(out, domain.ChatMessage{Role: role, Content: content})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func toSources(docs []domain.LogicalDocument) []domain.Source {
	out := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Source{
			Title:           doc.Title,
			Author:          doc.Author,
			DocType:         doc.DocType,
			Topic:           doc.Topic,
			Genre:           doc.Genre,
			Tags:            doc.Tags,
			Difficulty:      doc.Difficulty,
			ChunksAvailable: doc.ChunksAvailable,
			TotalChunks:     doc.TotalChunks,
			RelevanceScore:  doc.RelevanceScore,
			MatchType:       doc.MatchType,
			Provenance:      doc.Provenance,
		})
	}
	return out
}

var _ ports.ChatService = (*ChatUseCase)(nil)
