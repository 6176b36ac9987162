package ports

import (
	"context"

	"github.com/kirillkom/library-rag/internal/core/domain"
)

// ChatService is the inbound contract for document question answering.
type ChatService interface {
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
	Retrieve(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error)
}
