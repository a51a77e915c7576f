// Package downstream implements the HTTP client adapter for downstream
// service calls. Every issued request terminates: connection failures,
// timeouts and non-2xx replies are synthesized into error parts instead of
// being surfaced as errors, so the orchestrator's graph always drains.
package downstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/aescanero/routerd/pkg/message"
	"go.uber.org/zap"
)

// Client issues downstream calls with a per-call timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a downstream client.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
}

// Do executes one prepared request and returns its reply parts. The
// returned slice is never empty: failures yield a single synthesized error
// part attributed to the service.
func (c *Client) Do(ctx context.Context, out *message.OutgoingRequest) []message.Part {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if len(out.Body) > 0 {
		body = bytes.NewReader(out.Body)
	}

	req, err := http.NewRequestWithContext(ctx, out.Method, out.URL(), body)
	if err != nil {
		c.logger.Warn("failed to build downstream request",
			zap.String("service", out.Service),
			zap.Error(err))
		return []message.Part{message.ErrorPart(out.Service, "bad request: "+err.Error())}
	}
	if out.ContentType != "" {
		req.Header.Set("Content-Type", out.ContentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		reason := "connect: " + err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout after " + c.timeout.String()
		}
		c.logger.Warn("downstream call failed",
			zap.String("service", out.Service),
			zap.String("url", out.URL()),
			zap.Error(err))
		return []message.Part{message.ErrorPart(out.Service, reason)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("failed to read downstream reply",
			zap.String("service", out.Service),
			zap.Error(err))
		return []message.Part{message.ErrorPart(out.Service, "read: "+err.Error())}
	}

	return message.ParseReply(out.Service, resp.StatusCode, resp.Header.Get("Content-Type"), data)
}
