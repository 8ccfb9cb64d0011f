package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
)

const maxResponseBytes = 8 * 1024 * 1024

// RequestError describes a failed outbound call. Retryable marks transport failures and 5xx/429 answers.
type RequestError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	default:
		return e.Op
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	return false
}

type Options struct {
	BaseURL    string
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries uint64
	Backoff    time.Duration
	// Transport replaces http.DefaultTransport when set.
	Transport http.RoundTripper
}

// JSONClient talks JSON to a single REST base URL.
type JSONClient struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	maxRetries uint64
	backoff    time.Duration
}

func New(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func NewJSONClient(opts Options) (*JSONClient, error) {
	trimmedBaseURL := strings.TrimSpace(opts.BaseURL)
	if trimmedBaseURL == "" {
		return nil, &RequestError{Op: "create http client", Err: errors.New("base url is empty")}
	}

	parsed, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, &RequestError{Op: "parse base url", Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &RequestError{Op: "validate base url", Err: fmt.Errorf("invalid base url: %s", trimmedBaseURL)}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	headers := make(map[string]string, len(opts.Headers))
	for key, value := range opts.Headers {
		headers[key] = value
	}

	httpClient := New(timeout)
	if opts.Transport != nil {
		httpClient.Transport = opts.Transport
	}

	return &JSONClient{
		baseURL:    strings.TrimRight(trimmedBaseURL, "/"),
		headers:    headers,
		httpClient: httpClient,
		maxRetries: opts.MaxRetries,
		backoff:    backoff,
	}, nil
}

// DoJSON sends requestBody as JSON and decodes a 2xx answer into responseBody.
// Retryable failures are retried with Fibonacci backoff up to the configured count.
func (c *JSONClient) DoJSON(ctx context.Context, method, path string, requestBody, responseBody any) error {
	if c == nil || c.httpClient == nil {
		return &RequestError{Op: "do json request", Err: errors.New("http client is not initialized")}
	}

	var payload []byte
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return &RequestError{Op: "marshal request body", Err: err}
		}
		payload = raw
	}

	var responseBytes []byte
	var statusCode int
	b := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		status, body, err := c.do(ctx, method, path, payload)
		if err != nil {
			if IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		statusCode, responseBytes = status, body
		return nil
	})
	if err != nil {
		return err
	}

	if responseBody == nil || len(responseBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(responseBytes, responseBody); err != nil {
		return &RequestError{Op: "decode http response", StatusCode: statusCode, Err: err}
	}
	return nil
}

func (c *JSONClient) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if strings.TrimSpace(method) == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+ensureLeadingSlash(path), bodyReader)
	if err != nil {
		return 0, nil, &RequestError{Op: "create http request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &RequestError{Op: "execute http request", Retryable: isRetryableNetworkError(err), Err: err}
	}
	defer resp.Body.Close()

	responseBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if readErr != nil {
		return resp.StatusCode, nil, &RequestError{Op: "read http response", StatusCode: resp.StatusCode, Err: readErr}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := strings.TrimSpace(string(responseBytes))
		if errMessage == "" {
			errMessage = http.StatusText(resp.StatusCode)
		}
		return resp.StatusCode, responseBytes, &RequestError{
			Op:         "unexpected http status",
			StatusCode: resp.StatusCode,
			Retryable:  isRetryableStatus(resp.StatusCode),
			Err:        errors.New(errMessage),
		}
	}

	return resp.StatusCode, responseBytes, nil
}

func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	// The caller's own deadline is final.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

func ensureLeadingSlash(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "/"
	}
	if strings.HasPrefix(trimmed, "/") {
		return trimmed
	}
	return "/" + trimmed
}
