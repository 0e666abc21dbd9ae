package signingClient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/server"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"go.uber.org/zap"
)

const DefaultTimeout = 3 * time.Minute

// ClientConfig holds the configuration for the signing server client
type ClientConfig struct {
	ServerURL string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Client talks to a signing server over HTTP
type Client struct {
	serverURL  string
	httpClient *http.Client
	logger     *zap.Logger
}

// APIError is a non-success response from the server
type APIError struct {
	StatusCode int
	Message    string
	Reason     *types.FailureReason
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signing server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Reason == nil {
		return nil
	}
	return e.Reason
}

func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		serverURL:  strings.TrimSuffix(config.ServerURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     config.Logger,
	}, nil
}

// Status fetches the session snapshot
func (c *Client) Status(ctx context.Context) (*session.Snapshot, error) {
	var snap session.Snapshot
	if err := c.do(ctx, http.MethodGet, "/status", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) SignMessage(ctx context.Context, req *server.SignMessageRequest) (*server.SubmitResponse, error) {
	return c.submit(ctx, "/sign/message", req)
}

func (c *Client) SignTypedData(ctx context.Context, req *server.SignTypedDataRequest) (*server.SubmitResponse, error) {
	return c.submit(ctx, "/sign/typed-data", req)
}

func (c *Client) SignMail(ctx context.Context, req *server.SignMailRequest) (*server.SubmitResponse, error) {
	return c.submit(ctx, "/sign/mail", req)
}

// ClearError drops the error the server is presenting
func (c *Client) ClearError(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/error/clear", nil, nil)
}

func (c *Client) submit(ctx context.Context, path string, body interface{}) (*server.SubmitResponse, error) {
	var resp server.SubmitResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	c.logger.Sugar().Debugw("Submitted signing request",
		"path", path,
		"generation", resp.Generation,
		"state", resp.Snapshot.State,
	)
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// 422 carries a rejected outcome, which is still a complete answer
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted, http.StatusUnprocessableEntity:
	case http.StatusNoContent:
		return nil
	default:
		return parseAPIError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}

	var errResp server.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr.Message = errResp.Error
		apiErr.Reason = errResp.Reason
	}
	return apiErr
}
