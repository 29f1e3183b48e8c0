package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
)

const (
	defaultTopK          = 5
	maxMatchTextLength   = 500
	maxResponseSizeBytes = 2 << 20
)

// Embedder turns query text into a dense vector. When nil, the index is
// queried with raw text and Upstash embeds server-side.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Config holds the REST settings for one Upstash Vector index.
type Config struct {
	URL       string        `envconfig:"URL" split_words:"true" required:"true"`
	Token     string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout   time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	Namespace string        `envconfig:"NAMESPACE" split_words:"true"`
	TopK      int           `envconfig:"TOP_K" split_words:"true" default:"5"`
}

// ClientOption customizes Client.
type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithEmbedder(e Embedder) ClientOption {
	return func(c *Client) {
		c.embedder = e
	}
}

// Client queries an Upstash Vector index over REST. It satisfies
// contract.VectorIndex.
type Client struct {
	baseURL    string
	token      string
	namespace  string
	topK       int
	httpClient *http.Client
	embedder   Embedder
}

var _ contractx.VectorIndex = (*Client)(nil)

func New(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: upstash vector url is required", contractx.ErrValidation)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid vector rest url: %v", contractx.ErrValidation, err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: upstash vector token is required", contractx.ErrValidation)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	client := &Client{
		baseURL:   baseURL,
		token:     token,
		namespace: strings.TrimSpace(cfg.Namespace),
		topK:      topK,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) Close() error { return nil }

func (c *Client) Search(ctx context.Context, query string, topK int) ([]contractx.VectorMatch, error) {
	return c.query(ctx, query, "", topK)
}

// SearchFiltered narrows results to records whose metadata fields contain
// the given values.
func (c *Client) SearchFiltered(ctx context.Context, query string, filter map[string]string, topK int) ([]contractx.VectorMatch, error) {
	return c.query(ctx, query, filterExpression(filter), topK)
}

type queryRequest struct {
	Data            string    `json:"data,omitempty"`
	Vector          []float64 `json:"vector,omitempty"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Filter          string    `json:"filter,omitempty"`
}

type queryResponse struct {
	Result []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"result"`
	Error string `json:"error"`
}

func (c *Client) query(ctx context.Context, query, filter string, topK int) ([]contractx.VectorMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", contractx.ErrValidation)
	}
	if topK <= 0 {
		topK = c.topK
	}

	reqBody := queryRequest{
		TopK:            topK,
		IncludeMetadata: true,
		Filter:          filter,
	}
	if c.embedder != nil {
		vector, err := c.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: embed query: %v", contractx.ErrExecution, err)
		}
		reqBody.Vector = vector
	} else {
		reqBody.Data = query
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal query: %v", contractx.ErrValidation, err)
	}

	endpoint := c.baseURL + "/query"
	if c.namespace != "" {
		endpoint += "/" + url.PathEscape(c.namespace)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build query request: %v", contractx.ErrConnection, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrConnection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read query response: %v", contractx.ErrConnection, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: vector http status=%d body=%s", contractx.ErrExecution, resp.StatusCode, string(raw))
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode query response: %v", contractx.ErrExecution, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%w: %s", contractx.ErrExecution, parsed.Error)
	}

	matches := make([]contractx.VectorMatch, 0, len(parsed.Result))
	for _, r := range parsed.Result {
		matches = append(matches, toMatch(r.ID, r.Score, r.Metadata))
	}
	return matches, nil
}

func toMatch(id string, score float64, metadata map[string]any) contractx.VectorMatch {
	match := contractx.VectorMatch{ID: id, Score: score}
	for key, value := range metadata {
		text, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "text":
			match.Text = clipText(text)
		case "source":
			match.Source = text
		default:
			if match.Metadata == nil {
				match.Metadata = make(map[string]string)
			}
			match.Metadata[key] = text
		}
	}
	return match
}

func clipText(text string) string {
	if len(text) <= maxMatchTextLength {
		return text
	}
	return text[:maxMatchTextLength] + "..."
}

// filterExpression renders a metadata filter as an Upstash filter string,
// one GLOB clause per field, AND-joined in key order.
func filterExpression(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, key := range keys {
		value := strings.ReplaceAll(filter[key], "'", "")
		clauses = append(clauses, fmt.Sprintf("%s GLOB '*%s*'", key, value))
	}
	return strings.Join(clauses, " AND ")
}
