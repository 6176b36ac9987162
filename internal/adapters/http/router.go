package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/library-rag/internal/config"
	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/core/ports"
	"github.com/kirillkom/library-rag/internal/observability/logging"
	"github.com/kirillkom/library-rag/internal/observability/metrics"
)

const (
	serviceName     = "api"
	maxRequestBytes = 1 << 20
)

type Router struct {
	cfg     config.Config
	chat    ports.ChatService
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

func NewRouter(cfg config.Config, chat ports.ChatService, httpMetrics *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		chat:    chat,
		metrics: httpMetrics,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/chat", rt.handleChat)
	api.HandleFunc("POST /api/retrieve", rt.handleRetrieve)

	var guarded http.Handler = api
	guarded = backpressureMiddleware(
		guarded,
		rt.cfg.APIMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		rt.recordRejected,
	)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/api/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type historyMessageBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

type chatRequestBody struct {
	Message     string               `json:"message"`
	ChatHistory []historyMessageBody `json:"chatHistory"`
	Page        int                  `json:"page"`
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (b chatRequestBody) history() []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(b.ChatHistory))
	for _, msg := range b.ChatHistory {
		content := msg.Content
		if strings.TrimSpace(content) == "" {
			content = msg.Text
		}
		out = append(out, domain.ChatMessage{Role: msg.Role, Content: content})
	}
	return out
}

func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, ok := rt.decodeRequest(w, r)
	if !ok {
		return
	}

	resp, err := rt.chat.Chat(r.Context(), domain.ChatRequest{
		Message: body.Message,
		History: body.history(),
		Page:    body.Page,
	})
	if err != nil {
		rt.writeError(w, r, "chat", err, nil)
		return
	}
	rt.recordRetrieval("chat", resp.Retrieval, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, ok := rt.decodeRequest(w, r)
	if !ok {
		return
	}

	result, err := rt.chat.Retrieve(r.Context(), domain.RetrievalQuery{
		Text:    body.Message,
		History: body.history(),
		Page:    body.Page,
	})
	if err != nil {
		rt.writeError(w, r, "retrieve", err, result)
		return
	}
	rt.recordRetrieval("retrieve", result, time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) decodeRequest(w http.ResponseWriter, r *http.Request) (chatRequestBody, bool) {
	var body chatRequestBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return body, false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return body, false
	}
	if strings.TrimSpace(body.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "message is required"})
		return body, false
	}
	if body.Page < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "page must not be negative"})
		return body, false
	}
	return body, true
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, endpoint string, err error, partial *domain.RetrievalResult) {
	status := mapErrorToHTTPStatus(err)
	requestID := requestIDFromContext(r.Context())
	logger := logging.FromContext(r.Context(), rt.logger)

	var failed []string
	if partial != nil {
		failed = strategyNames(partial.FailedStrategies)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request_failed", "endpoint", endpoint, "status", status, "error", err, "failed_strategies", failed)
	} else {
		logger.Warn("request_rejected", "endpoint", endpoint, "status", status, "error", err)
	}
	if rt.metrics != nil {
		rt.metrics.RecordRetrievalError(serviceName, endpoint, errorKind(err), failed)
	}

	writeJSON(w, status, errorBody{Error: publicErrorMessage(err), RequestID: requestID})
}

func (rt *Router) recordRetrieval(endpoint string, result *domain.RetrievalResult, elapsed time.Duration) {
	if rt.metrics == nil || result == nil {
		return
	}
	rt.metrics.RecordRetrieval(serviceName, endpoint, metrics.RetrievalObservation{
		QueryType:        string(result.Strategy),
		DocumentsFound:   len(result.Documents),
		NeedsRetrieval:   result.Classification.NeedsRetrieval,
		Analyzed:         result.Classification.Analyzed,
		FailedStrategies: strategyNames(result.FailedStrategies),
		Duration:         elapsed,
	})
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func strategyNames(strategies []domain.Strategy) []string {
	out := make([]string, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, string(s))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
