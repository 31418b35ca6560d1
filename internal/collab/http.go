package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// httpService is a small JSON-over-HTTP client shared by the OCR, parser and
// linker collaborator clients. Timeouts and connection failures surface as
// transient errors so the orchestrator's retry policy applies.
type httpService struct {
	baseURL    string
	httpClient *http.Client
}

func newHTTPService(baseURL string, timeout time.Duration) *httpService {
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &httpService{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// postJSON sends body as JSON and decodes the response into result.
func (s *httpService) postJSON(ctx context.Context, path string, body, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("collaborator returned %d: %s", resp.StatusCode, respBody)
		if isRetryableStatus(resp.StatusCode) {
			return Transient(err)
		}
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classifyTransportError wraps network-level failures as transient.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(fmt.Errorf("request timed out: %w", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	// Connection refused/reset and DNS failures are worth retrying too.
	return Transient(fmt.Errorf("request failed: %w", err))
}

// isRetryableStatus reports whether an HTTP status indicates a transient
// server-side condition.
func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
