package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	recordsPath         = "/protected/pesaje"
	vesselsPath         = "/protected/embarcacion"
	defaultTimeout      = 15 * time.Second
	maxResponseBodySize = 4 << 20
)

// CredentialSource supplies the bearer token attached to every request.
type CredentialSource interface {
	Token() (string, error)
}

// ClientConfig describes how to reach the backend.
type ClientConfig struct {
	BaseURL        string
	HTTPClient     *http.Client
	Credentials    CredentialSource
	OnUnauthorized func()
	Logger         *zap.Logger
}

// Client talks to the weighing backend over HTTP+JSON.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	credentials    CredentialSource
	onUnauthorized func()
	logger         *zap.Logger
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if cfg.Credentials == nil {
		return nil, errMissingCredentials
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:        baseURL,
		httpClient:     httpClient,
		credentials:    cfg.Credentials,
		onUnauthorized: cfg.OnUnauthorized,
		logger:         logger,
	}, nil
}

// CreateRecord transmits a record and returns the backend's copy.
func (c *Client) CreateRecord(ctx context.Context, payload RecordPayload) (RemoteRecord, error) {
	var created RemoteRecord
	status, err := c.do(ctx, http.MethodPost, recordsPath, payload, &created)
	if err != nil {
		return RemoteRecord{}, err
	}
	if created.ID == "" {
		return RemoteRecord{}, &SubmissionError{StatusCode: status, Message: "response carried no id", Err: ErrInvalidResponse}
	}
	return created, nil
}

// ListRecords returns the records stored on the backend.
func (c *Client) ListRecords(ctx context.Context) ([]RemoteRecord, error) {
	records := []RemoteRecord{}
	if _, err := c.do(ctx, http.MethodGet, recordsPath, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ListVessels returns the vessels known to the backend.
func (c *Client) ListVessels(ctx context.Context) ([]Vessel, error) {
	vessels := []Vessel{}
	if _, err := c.do(ctx, http.MethodGet, vesselsPath, nil, &vessels); err != nil {
		return nil, err
	}
	return vessels, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	token, err := c.credentials.Token()
	if err != nil {
		return 0, &SubmissionError{Message: err.Error(), Err: err}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, &SubmissionError{Message: "payload could not be encoded", Err: err}
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, &SubmissionError{Message: err.Error(), Err: err}
	}
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("backend unreachable", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return 0, &SubmissionError{Message: err.Error(), Err: err}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBodySize))
	if err != nil {
		return response.StatusCode, &SubmissionError{StatusCode: response.StatusCode, Message: err.Error(), Err: err}
	}

	if response.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("backend rejected credential", zap.String("path", path))
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return response.StatusCode, &SubmissionError{
			StatusCode: response.StatusCode,
			Message:    responseMessage(raw, response.StatusCode),
			Err:        ErrUnauthorized,
		}
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		message := responseMessage(raw, response.StatusCode)
		c.logger.Warn("backend rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("message", message))
		return response.StatusCode, &SubmissionError{StatusCode: response.StatusCode, Message: message, Err: ErrRejected}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return response.StatusCode, &SubmissionError{
				StatusCode: response.StatusCode,
				Message:    fmt.Sprintf("response could not be decoded: %v", err),
				Err:        fmt.Errorf("%w: %v", ErrInvalidResponse, err),
			}
		}
	}
	c.logger.Debug("backend request completed", zap.String("method", method), zap.String("path", path), zap.Int("status", response.StatusCode))
	return response.StatusCode, nil
}

func responseMessage(raw []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if message := strings.TrimSpace(body.Message); message != "" {
			return message
		}
		if message := strings.TrimSpace(body.Error); message != "" {
			return message
		}
	}
	return http.StatusText(status)
}
