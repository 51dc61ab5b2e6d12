package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arcanalabs/arcana-server/internal/apperrors"
	"github.com/arcanalabs/arcana-server/pkg/config"
)

const apiName = "oracle"

// HTTPGenerator calls the external text-generation endpoint. Failures go
// through the shared retry policy and a circuit breaker so a degraded
// upstream does not pile up in-flight requests.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
	breaker  *apperrors.CircuitBreaker
	log      *slog.Logger
}

// NewHTTPGenerator constructs the client from configuration.
func NewHTTPGenerator(cfg config.OracleConfig, log *slog.Logger) *HTTPGenerator {
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPGenerator{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		breaker:  apperrors.NewCircuitBreaker(),
		log:      log,
	}
}

type generateRequest struct {
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
	Sign   string `json:"sign,omitempty"`
	Locale string `json:"locale,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate requests a reading from the upstream endpoint.
func (g *HTTPGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var text string

	err := apperrors.WithRetry(ctx, func() error {
		return g.breaker.Call(func() error {
			result, err := g.doRequest(ctx, req)
			if err != nil {
				return err
			}

			text = result
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrCircuitOpen) {
			g.log.Warn("oracle circuit open, rejecting request", slog.String("kind", string(req.Kind)))
			return "", apperrors.NewExternalAPIError(apiName, err)
		}
		return "", err
	}

	return text, nil
}

// HealthCheck probes the upstream health endpoint.
func (g *HTTPGenerator) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	g.authorize(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return apperrors.NewExternalAPIError(apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewExternalAPIError(apiName, fmt.Errorf("health status %d", resp.StatusCode))
	}

	return nil
}

func (g *HTTPGenerator) doRequest(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Kind:   string(req.Kind),
		Text:   req.Text,
		Sign:   string(req.Sign),
		Locale: req.Locale,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	g.authorize(httpReq)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", apperrors.NewExternalAPIError(apiName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperrors.NewExternalAPIError(apiName, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.NewExternalAPIError(apiName, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	default:
		// Client errors are not retryable.
		return "", apperrors.NewValidationError(fmt.Sprintf("oracle rejected request: status %d", resp.StatusCode))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperrors.NewExternalAPIError(apiName, fmt.Errorf("decode response: %w", err))
	}
	if parsed.Text == "" {
		return "", apperrors.NewExternalAPIError(apiName, errors.New("empty generation"))
	}

	return parsed.Text, nil
}

func (g *HTTPGenerator) authorize(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
