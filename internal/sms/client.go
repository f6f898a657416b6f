package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Config holds SMS gateway settings
type Config struct {
	URL         string
	UserID      string
	APIKey      string
	SenderID    string
	CountryCode string
	Timeout     time.Duration
	RetryCount  int
	RatePerSec  int // gateway requests per second; 0 means unlimited
}

// Result is the outcome of one send. Failures are values, never errors.
type Result struct {
	Success bool
	Error   string
}

type gatewayResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// failureStatuses are the status values the gateway uses to report a rejected send
var failureStatuses = map[string]struct{}{
	"error":   {},
	"failed":  {},
	"failure": {},
	"fail":    {},
	"false":   {},
}

// Client sends SMS through the HTTP gateway with form-encoded requests
type Client struct {
	httpClient *resty.Client
	limiter    *rate.Limiter
	config     Config
	logger     *slog.Logger
}

// NewClient creates a gateway client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool {
			return dialFailed(err)
		}).
		SetHeader("Accept", "application/json")

	c := &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logger,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}

	return c
}

// dialFailed reports whether the request never reached the gateway. Only those
// are retried: after a timeout the gateway may already have sent the message.
func dialFailed(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Send delivers text to one phone number. The HTTP status alone is not trusted:
// a 2xx response whose status field reports failure is a failed send.
func (c *Client) Send(ctx context.Context, to, text string) Result {
	number, err := NormalizePhone(to, c.config.CountryCode)
	if err != nil {
		return Result{Error: err.Error()}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Error: fmt.Sprintf("rate limit wait: %v", err)}
		}
	}

	startTime := time.Now()

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"user_id":   c.config.UserID,
			"api_key":   c.config.APIKey,
			"sender_id": c.config.SenderID,
			"to":        number,
			"message":   text,
		}).
		Post(c.config.URL)

	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("SMS gateway request failed",
			slog.String("to", number),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return Result{Error: fmt.Sprintf("failed to send request: %v", err)}
	}

	c.logger.Debug("SMS gateway request completed",
		slog.String("to", number),
		slog.Int("status", resp.StatusCode()),
		slog.Duration("duration", duration),
	)

	if !resp.IsSuccess() {
		return Result{Error: fmt.Sprintf("unexpected status code: %d, body: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))}
	}

	var body gatewayResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		c.logger.Warn("SMS gateway returned a non-JSON body",
			slog.String("to", number),
			slog.String("body", resp.String()),
		)
		return Result{Success: true}
	}

	if _, failed := failureStatuses[strings.ToLower(strings.TrimSpace(body.Status))]; failed {
		reason := body.Message
		if reason == "" {
			reason = resp.String()
		}
		return Result{Error: fmt.Sprintf("gateway reported %s: %s", body.Status, reason)}
	}

	return Result{Success: true}
}
