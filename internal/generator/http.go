package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jakesimonds/Creator/internal/logging"
)

const (
	DefaultMode     = "preview"
	DefaultArtStyle = "realistic"
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 2000
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	URL          string
	APIKey       string
	Mode         string
	ArtStyle     string
	ShouldRemesh bool
	Timeout      time.Duration
}

// HTTPClient posts generation requests as JSON to a single endpoint.
type HTTPClient struct {
	URL    string
	APIKey string
	HTTP   *http.Client

	mode         string
	artStyle     string
	shouldRemesh bool
}

// NewHTTPClient returns a client whose transport is traced with otelhttp.
// Timeout policy belongs to the HTTP client; Generate adds none of its own.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	mode := cfg.Mode
	if mode == "" {
		mode = DefaultMode
	}
	style := cfg.ArtStyle
	if style == "" {
		style = DefaultArtStyle
	}
	return &HTTPClient{
		URL:    strings.TrimRight(cfg.URL, "/"),
		APIKey: cfg.APIKey,
		HTTP: &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(string, *http.Request) string {
					return "generator POST"
				}),
			),
		},
		mode:         mode,
		artStyle:     style,
		shouldRemesh: cfg.ShouldRemesh,
	}
}

// response accepts both the {"model_id": ...} and the {"result": ...} shapes.
type response struct {
	ModelID string `json:"model_id"`
	Result  string `json:"result"`
	Status  string `json:"status"`
}

// Generate submits prompt once. Network failures, 5xx and 429 are wrapped in
// ErrTransient; any other non-2xx or an unusable body in ErrPermanent.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (ModelHandle, error) {
	ctx, span := tracer.Start(ctx, "generator.Generate", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.length", len(prompt)))

	handle, err := c.generate(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ModelHandle{}, err
	}
	span.SetAttributes(attribute.String("model.id", handle.ID), attribute.String("model.status", handle.Status))
	return handle, nil
}

func (c *HTTPClient) generate(ctx context.Context, prompt string) (ModelHandle, error) {
	if c.URL == "" {
		return ModelHandle{}, fmt.Errorf("%w: generator url not configured", ErrPermanent)
	}
	body, err := json.Marshal(Request{
		Prompt:       prompt,
		Mode:         c.mode,
		ArtStyle:     c.artStyle,
		ShouldRemesh: c.shouldRemesh,
	})
	if err != nil {
		return ModelHandle{}, fmt.Errorf("%w: encode request: %v", ErrPermanent, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return ModelHandle{}, fmt.Errorf("%w: new request: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Debugw("generator: POST failed", "err", err)
		return ModelHandle{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Warnw("generator: returned non-2xx", "status", resp.StatusCode, "body", strings.TrimSpace(string(b)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return ModelHandle{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
		}
		return ModelHandle{}, fmt.Errorf("%w: status %d", ErrPermanent, resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ModelHandle{}, fmt.Errorf("%w: decode response: %v", ErrPermanent, err)
	}
	id := out.ModelID
	if id == "" {
		id = out.Result
	}
	if id == "" {
		return ModelHandle{}, fmt.Errorf("%w: response carried no model id", ErrPermanent)
	}
	status := out.Status
	if status == "" {
		status = "PENDING"
	}
	logging.Infow("generator: request accepted", "model_id", id, "status", status)
	return ModelHandle{ID: id, Status: status}, nil
}
