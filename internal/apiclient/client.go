package apiclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/coresolutiondoteu/open-webui/internal/switcher"
	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 4 << 10

// Client is a typed HTTP client for the config and switch endpoints.
// It satisfies switcher.Backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. It applies to a copy of the
// HTTP client, so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// New creates a new Client for the given server URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadConfig fetches GET /config.json.
func (c *Client) LoadConfig(ctx context.Context) (*api.ModelConfig, error) {
	var cfg api.ModelConfig
	if err := c.do(ctx, "load", http.MethodGet, c.baseURL+"/config.json", &cfg); err != nil {
		return nil, err
	}
	if cfg.AvailableModels == nil {
		return nil, switcher.NewError(switcher.KindMalformed, "load", errors.New("available_models missing from config"))
	}
	return &cfg, nil
}

// SwitchModel calls POST /api/switch_model?model=<model>.
func (c *Client) SwitchModel(ctx context.Context, model string) (*api.SwitchResponse, error) {
	u := c.baseURL + "/api/switch_model?" + url.Values{"model": {model}}.Encode()

	var resp api.SwitchResponse
	if err := c.do(ctx, "switch", http.MethodPost, u, &resp); err != nil {
		var se *switcher.Error
		if stderrors.As(err, &se) {
			se.Model = model
		}
		return nil, err
	}
	return &resp, nil
}

// do sends a request and decodes a JSON answer into result. Failures come back
// as *switcher.Error so callers can tell network, status and decoding problems apart.
func (c *Client) do(ctx context.Context, op, method, target string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return switcher.NewError(switcher.KindUnknown, op, errors.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return switcher.NewError(switcher.KindNetwork, op, errors.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &switcher.Error{
			Kind:   switcher.KindRejected,
			Op:     op,
			Status: resp.StatusCode,
			Err:    errors.New(errorMessage(body)),
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return switcher.NewError(switcher.KindMalformed, op, errors.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage extracts the message from an api.ErrorResponse body, falling back to the raw text.
func errorMessage(body []byte) string {
	var er api.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	return fmt.Sprintf("%q", text)
}
