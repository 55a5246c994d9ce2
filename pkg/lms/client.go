// Package lms is the HTTP collaborator for the external learning-management
// system. The core only needs two operations from it: submitting an artifact
// (carrying the idempotency key so retried calls are recognised as the same
// logical submission) and resolving a username to contact details.
package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

// Destination identifies the course/assignment slot receiving a submission.
type Destination struct {
	CourseID     int64 `json:"course_id"`
	AssignmentID int64 `json:"assignment_id"`
}

// SubmissionReceipt carries the identifiers the LMS assigns on success.
type SubmissionReceipt struct {
	ExternalUserID       string `json:"user_id"`
	ExternalSubmissionID string `json:"submission_id"`
}

// UserInfo is the subset of LMS account data the notifier needs.
type UserInfo struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Config parametrises the client.
type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Client talks to the LMS over HTTP with a bounded timeout and a circuit
// breaker. A timed-out call reports an unknown outcome as retryable; it never
// assumes success.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient builds the LMS client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = time.Minute
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "lms",
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  logger,
	}
}

type submitRequest struct {
	Destination
	ContentRef     string `json:"content_ref"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Submit delivers one artifact to the LMS. The idempotency key correlates
// retried calls so the LMS deduplicates them on its side.
func (c *Client) Submit(ctx context.Context, dest Destination, contentRef, idempotencyKey string) (*SubmissionReceipt, error) {
	payload, err := json.Marshal(submitRequest{Destination: dest, ContentRef: contentRef, IdempotencyKey: idempotencyKey})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrTerminalDelivery.Code, appErrors.ErrTerminalDelivery.Status, "encode submission payload")
	}

	body, err := c.call(ctx, http.MethodPost, "/api/v1/submissions", payload)
	if err != nil {
		return nil, err
	}

	receipt := &SubmissionReceipt{}
	if err := json.Unmarshal(body, receipt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status, "malformed LMS response")
	}
	if receipt.ExternalSubmissionID == "" {
		return nil, appErrors.Clone(appErrors.ErrRetryableDelivery, "LMS response missing submission id")
	}
	return receipt, nil
}

// ResolveUser looks up an LMS account. A missing account is not an error; the
// caller receives nil.
func (c *Client) ResolveUser(ctx context.Context, username string) (*UserInfo, error) {
	body, err := c.call(ctx, http.MethodGet, "/api/v1/users?username="+username, nil)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrTerminalDelivery) {
			return nil, nil
		}
		return nil, err
	}
	info := &UserInfo{}
	if err := json.Unmarshal(body, info); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status, "malformed LMS response")
	}
	return info, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrTerminalDelivery.Code, appErrors.ErrTerminalDelivery.Status, "build LMS request")
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// Network failure or timeout: the outcome is unknown.
			return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status, "LMS unreachable or timed out")
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status, "read LMS response")
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, classifyStatus(resp.StatusCode, string(body))
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status, "LMS circuit open")
		}
		return nil, err
	}
	return result.([]byte), nil
}

func classifyStatus(status int, body string) error {
	cause := fmt.Errorf("lms status %d: %s", status, body)
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return appErrors.Wrap(cause, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status, "LMS failed transiently")
	}
	return appErrors.Wrap(cause, appErrors.ErrTerminalDelivery.Code, appErrors.ErrTerminalDelivery.Status, "LMS rejected the submission")
}
