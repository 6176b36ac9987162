package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/library-rag/internal/core/domain"
	"github.com/kirillkom/library-rag/internal/infrastructure/resilience"
)

var (
	// ErrModelNotFound means the configured model is not pulled on the server.
	ErrModelNotFound = errors.New("ollama model not found")
	// ErrInputTooLong means the prompt or embedding input exceeds the model
	// context window.
	ErrInputTooLong = errors.New("ollama input exceeds model context length")
)

// HTTPStatusError is a non-2xx reply from Ollama. Known error bodies unwrap
// to ErrModelNotFound or ErrInputTooLong.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	if e.Body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func (e *HTTPStatusError) Unwrap() error {
	if e == nil {
		return nil
	}
	body := strings.ToLower(e.Body)
	switch {
	case e.StatusCode == http.StatusNotFound && strings.Contains(body, "model"),
		strings.Contains(body, "model") && strings.Contains(body, "not found"):
		return ErrModelNotFound
	case strings.Contains(body, "context length"), strings.Contains(body, "input length"):
		return ErrInputTooLong
	default:
		return nil
	}
}

// classifyOllamaError decides retry and breaker accounting for one attempt.
// A missing model counts against the breaker; an oversized input does not.
func classifyOllamaError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	case errors.Is(err, ErrModelNotFound):
		return resilience.ErrorClassification{RecordFailure: true}
	case errors.Is(err, ErrInputTooLong):
		return resilience.ErrorClassification{}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		retryable := isRetryableHTTPStatus(statusErr.StatusCode)
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

// classifierFor returns the classifier for an operation. Query analysis runs
// under a short budget of its own, so it gets a single attempt.
func classifierFor(operation string) resilience.ErrorClassifier {
	if operation != operationAnalyze {
		return classifyOllamaError
	}
	return func(err error) resilience.ErrorClassification {
		class := classifyOllamaError(err)
		class.Retryable = false
		return class
	}
}

// markTemporary tags failures a caller may retry later with ErrTemporary.
func markTemporary(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "ollama "+operation, err)
	}
	return err
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
