// Package genai is a lightweight facade over the Gemini REST surface. It
// exposes exactly the three call shapes the rest of the system needs: a text
// completion (optionally JSON-constrained and deterministic), a synchronous
// predict, and the start/fetch pair for long-running operations.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/infra"
)

// Options controls how the client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the Gemini API. The zero value is not usable; construct
// with NewClient.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// CallRequest describes one completion call. Deterministic pins temperature,
// topK and seed so repeated runs on identical input produce identical output.
// A non-nil ResponseSchema switches the backend into JSON-constrained mode.
type CallRequest struct {
	System         string
	User           string
	Context        []string
	ResponseSchema json.RawMessage
	Deterministic  bool
}

// Operation is the poll envelope of a long-running generation task.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    *APIError       `json:"error,omitempty"`
}

// APIError is the backend's error payload.
type APIError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

const deterministicSeed = 42

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one with a conservative timeout is created.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured completion model identifier.
func (c *Client) Model() string {
	return c.model
}

type generateContentRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature      *float64        `json:"temperature,omitempty"`
	TopK             *int            `json:"topK,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	CandidateCount   int             `json:"candidateCount,omitempty"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error APIError `json:"error"`
}

// Call runs one completion against the configured model and returns the
// concatenated candidate text. An empty response is returned as "" with a nil
// error; callers decide whether that is fatal.
func (c *Client) Call(ctx context.Context, req CallRequest) (string, error) {
	parts := []part{{Text: req.User}}
	for _, extra := range req.Context {
		parts = append(parts, part{Text: extra})
	}

	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
	}
	if req.System != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	cfg := &generationConfig{CandidateCount: 1}
	if req.Deterministic {
		temp := 0.0
		topK := 1
		seed := deterministicSeed
		cfg.Temperature = &temp
		cfg.TopK = &topK
		cfg.Seed = &seed
	}
	if len(req.ResponseSchema) > 0 {
		cfg.ResponseMimeType = "application/json"
		cfg.ResponseSchema = req.ResponseSchema
	}
	payload.GenerationConfig = cfg

	var response generateContentResponse
	path := fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model))
	if err := c.post(ctx, path, payload, &response); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, p := range candidate.Content.Parts {
			b.WriteString(p.Text)
		}
	}
	text := b.String()

	c.logger.Debug().
		Str("model", c.model).
		Bool("deterministic", req.Deterministic).
		Int("response_len", len(text)).
		Msg("genai: completion call")

	return text, nil
}

// Predict runs a synchronous prediction against the named model and returns
// the raw response document.
func (c *Client) Predict(ctx context.Context, model string, instance any) (json.RawMessage, error) {
	payload := map[string]any{"instances": []any{instance}}
	var response json.RawMessage
	path := fmt.Sprintf("/models/%s:predict", url.PathEscape(model))
	if err := c.post(ctx, path, payload, &response); err != nil {
		return nil, err
	}
	return response, nil
}

// StartOperation submits a long-running prediction and returns the backend's
// operation name, the handle later polls are issued against.
func (c *Client) StartOperation(ctx context.Context, model string, instance any) (string, error) {
	payload := map[string]any{"instances": []any{instance}}
	var op Operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(model))
	if err := c.post(ctx, path, payload, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("backend returned no operation name")
	}
	c.logger.Debug().Str("model", model).Str("operation", op.Name).Msg("genai: operation started")
	return op.Name, nil
}

// FetchOperation issues a single poll for the named operation.
func (c *Client) FetchOperation(ctx context.Context, name string) (*Operation, error) {
	var op Operation
	if err := c.get(ctx, "/"+strings.TrimLeft(name, "/"), &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			if apiErr.Error.Code == 0 {
				apiErr.Error.Code = resp.StatusCode
			}
			return &apiErr.Error
		}
		data, _ := io.ReadAll(resp.Body)
		return &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
