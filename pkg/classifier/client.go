// Package classifier calls the remote optical-extraction collaborator that
// reads register number and subject code off a scanned answer sheet. The core
// only consumes its best-effort strings; recognition itself lives elsewhere.
package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Result is the collaborator's best-effort answer.
type Result struct {
	RegisterNumber string  `json:"register_number"`
	SubjectCode    string  `json:"subject_code"`
	Confidence     float64 `json:"confidence"`
}

// Config parametrises the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the HTTP classifier collaborator.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds the classifier client. An empty base URL yields a client
// whose Classify always reports unavailability, letting intake fall back to
// filename parsing only.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type classifyRequest struct {
	Content string `json:"content"`
}

// Classify sends the scan bytes for extraction.
func (c *Client) Classify(ctx context.Context, data []byte) (*Result, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("classifier not configured")
	}

	payload, err := json.Marshal(classifyRequest{Content: base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return nil, fmt.Errorf("encode classify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read classifier response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier status %d: %s", resp.StatusCode, body)
	}

	result := &Result{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, fmt.Errorf("malformed classifier response: %w", err)
	}
	return result, nil
}
