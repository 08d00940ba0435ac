package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/entitysync/internal/model"
)

// Transport performs JSON requests against the configuration service.
// It is shared by every HTTPClient of one workspace.
type Transport struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// TransportOptions configures a Transport. Zero values select defaults.
type TransportOptions struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewTransport creates a Transport. An empty base URL selects the local
// development server.
func NewTransport(opts TransportOptions) *Transport {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = 3
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	return &Transport{
		baseURL:    baseURL,
		token:      strings.TrimSpace(opts.Token),
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// HTTPClient is a Client backed by the configuration service's REST API:
//
//	GET    /v1/workspaces/{ws}/collections/{name}
//	POST   /v1/workspaces/{ws}/collections/{name}
//	GET    /v1/workspaces/{ws}/collections/{name}/{id}
//	PATCH  /v1/workspaces/{ws}/collections/{name}/{id}
//	PUT    /v1/workspaces/{ws}/collections/{name}/{id}
//	DELETE /v1/workspaces/{ws}/collections/{name}/{id}
type HTTPClient[T model.Entity] struct {
	transport  *Transport
	workspace  string
	collection string
}

// NewHTTPClient creates a client for one workspace collection.
func NewHTTPClient[T model.Entity](transport *Transport, workspace, collection string) *HTTPClient[T] {
	return &HTTPClient[T]{
		transport:  transport,
		workspace:  workspace,
		collection: collection,
	}
}

func (c *HTTPClient[T]) collectionPath() string {
	return fmt.Sprintf("/v1/workspaces/%s/collections/%s", url.PathEscape(c.workspace), url.PathEscape(c.collection))
}

func (c *HTTPClient[T]) entityPath(id string) string {
	return c.collectionPath() + "/" + url.PathEscape(id)
}

// GetAll implements Client.
func (c *HTTPClient[T]) GetAll(ctx context.Context) ([]T, error) {
	var out []T
	if err := c.transport.doJSON(ctx, http.MethodGet, c.collectionPath(), nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Get implements Client.
func (c *HTTPClient[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	err := c.transport.doJSON(ctx, http.MethodGet, c.entityPath(id), nil, &out)
	return out, err
}

// Add implements Client. An empty or null response body yields a nil entity.
func (c *HTTPClient[T]) Add(ctx context.Context, entity T) (*T, error) {
	var raw json.RawMessage
	if err := c.transport.doJSON(ctx, http.MethodPost, c.collectionPath(), entity, &raw); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode created %s: %w", c.collection, err)
	}
	return &out, nil
}

// Patch implements Client.
func (c *HTTPClient[T]) Patch(ctx context.Context, id string, patch model.Partial) error {
	return c.transport.doJSON(ctx, http.MethodPatch, c.entityPath(id), patch, nil)
}

// Replace implements Client.
func (c *HTTPClient[T]) Replace(ctx context.Context, id string, entity T) error {
	return c.transport.doJSON(ctx, http.MethodPut, c.entityPath(id), entity, nil)
}

// Delete implements Client.
func (c *HTTPClient[T]) Delete(ctx context.Context, id string) error {
	return c.transport.doJSON(ctx, http.MethodDelete, c.entityPath(id), nil, nil)
}

func (t *Transport) doJSON(ctx context.Context, method, requestPath string, body any, out any) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	maxRetries := 0
	if retryable(method) {
		maxRetries = t.maxRetries
	}
	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if bodyBytes != nil {
			bodyReader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, t.baseURL+requestPath, bodyReader)
		if err != nil {
			return err
		}
		if t.token != "" {
			req.Header.Set("Authorization", "Bearer "+t.token)
		}
		req.Header.Set("X-Correlation-Id", uuid.NewString())
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries && ctx.Err() == nil {
				if waitErr := waitWithContext(ctx, t.retryDelay(attempt+1, "")); waitErr != nil {
					return waitErr
				}
				continue
			}
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if out == nil || len(payload) == 0 {
				return nil
			}
			if raw, ok := out.(*json.RawMessage); ok {
				*raw = append((*raw)[:0], payload...)
				return nil
			}
			return json.Unmarshal(payload, out)
		}

		if (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) && attempt < maxRetries {
			if waitErr := waitWithContext(ctx, t.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return waitErr
			}
			continue
		}

		var errPayload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(payload, &errPayload)
		if errPayload.Message == "" {
			errPayload.Message = http.StatusText(resp.StatusCode)
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Code:       errPayload.Code,
			Message:    errPayload.Message,
		}
	}
}

// retryable reports whether a request may be resent after a transient
// failure. POST creates an entity and the server may have committed it
// before failing, so it is sent once.
func retryable(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// retryDelay returns the wait before the given attempt. A Retry-After header
// in seconds wins over exponential backoff, capped at maxDelay.
func (t *Transport) retryDelay(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		if d > t.maxDelay {
			return t.maxDelay
		}
		return d
	}
	d := t.baseDelay << (attempt - 1)
	if d <= 0 || d > t.maxDelay {
		return t.maxDelay
	}
	return d
}

func waitWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
