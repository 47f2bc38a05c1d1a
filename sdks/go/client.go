package policygate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the policygate SDK client. It communicates with the policygate
// runtime decision API (POST /runtime-check) to check a tool call against
// the environment's published policy before it executes.
type Client struct {
	serverAddr string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client

	logger *slog.Logger
}

// NewClient creates a new policygate SDK client.
// It reads configuration from POLICYGATE_* environment variables by default.
// Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("POLICYGATE_SERVER_ADDR"),
		apiKey:     os.Getenv("POLICYGATE_API_KEY"),
		timeout:    parseDurationEnv("POLICYGATE_TIMEOUT", 5*time.Second),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Check sends req to POST /runtime-check and returns the decision. If the
// decision is blocked (allowed=false), it returns a *BlockedError — never a
// *CheckResponse with Allowed=false — so callers can rely on a nil error
// meaning the tool call may proceed. If the endpoint cannot be reached, Check
// fails closed: it returns a *ServerUnreachableError rather than allowing the
// caller to assume the tool call is safe to run.
func (c *Client) Check(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	resp, err := c.doCheck(ctx, req)
	if err != nil {
		if isConnectionError(err) {
			c.logger.Error("policygate server unreachable, failing closed",
				"server_addr", c.serverAddr,
				"tool_name", req.ToolName,
				"error", err,
			)
			return nil, &ServerUnreachableError{Cause: err}
		}
		return nil, err
	}

	if !resp.Allowed {
		return nil, &BlockedError{
			ToolName:          req.ToolName,
			ErrorCode:         resp.ErrorCode,
			Reasons:           resp.DecisionReasons,
			PolicyVersionUsed: resp.PolicyVersionUsed,
			StateBefore:       resp.StateBefore,
			StateAfter:        resp.StateAfter,
		}
	}
	return resp, nil
}

// doCheck sends the HTTP request to the runtime decision endpoint.
func (c *Client) doCheck(ctx context.Context, req CheckRequest) (*CheckResponse, error) {
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	var resp CheckResponse
	if err := c.doRequest(ctx, http.MethodPost, "/runtime-check", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doRequest performs an HTTP request to the policygate server.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &ClientError{
			Code: fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Err:  fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// isConnectionError determines if an error is a connection-level error
// (server unreachable, connection refused, timeout, etc.) as opposed to a
// well-formed HTTP response the server sent back.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// A ClientError means the server was reached and responded; that is
	// never a connection error even when the status code is an error.
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}

	// All other errors from http.Client.Do are connection errors
	// (DNS resolution, connection refused, TLS handshake, timeouts).
	return true
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// Try parsing as seconds (integer).
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	// Try parsing as duration string.
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
