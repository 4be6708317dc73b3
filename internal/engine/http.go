package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/casescope/hub/internal/model"
)

// HTTPEngine implements SearchIndex and Generator against the engine's
// REST API. Generation runs are asynchronous: a run is created, polled
// until it completes, and the final message fetched. The poll loop is
// bounded so a stalled engine cannot hold a request open indefinitely.
type HTTPEngine struct {
	baseURL      string
	client       *http.Client
	pollLimit    int
	pollInterval time.Duration
}

func NewHTTPEngine(baseURL string, pollLimit int, pollInterval time.Duration) *HTTPEngine {
	return &HTTPEngine{
		baseURL:      baseURL,
		client:       &http.Client{Timeout: 30 * time.Second},
		pollLimit:    pollLimit,
		pollInterval: pollInterval,
	}
}

func (e *HTTPEngine) Search(ctx context.Context, query, filter string, topK int) ([]SearchResult, error) {
	req := map[string]any{"query": query, "top_k": topK}
	if filter != "" {
		req["filter"] = filter
	}
	var resp struct {
		Results []SearchResult `json:"results"`
	}
	if err := e.postJSON(ctx, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (e *HTTPEngine) CreateThread(ctx context.Context) (string, error) {
	var resp struct {
		ThreadID string `json:"thread_id"`
	}
	if err := e.postJSON(ctx, "/v1/threads", map[string]any{}, &resp); err != nil {
		return "", err
	}
	if resp.ThreadID == "" {
		return "", fmt.Errorf("%w: empty thread id", model.ErrEngineFailed)
	}
	return resp.ThreadID, nil
}

func (e *HTTPEngine) DeleteThread(ctx context.Context, threadID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.baseURL+"/v1/threads/"+threadID, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: delete thread: %v", model.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("engine returned %d deleting thread %s", resp.StatusCode, threadID)
	}
	return nil
}

func (e *HTTPEngine) Run(ctx context.Context, threadID, message, filter, instructions string) (*RunResult, error) {
	create := map[string]any{"message": message}
	if filter != "" {
		create["filter"] = filter
	}
	if instructions != "" {
		create["instructions"] = instructions
	}
	var created struct {
		RunID string `json:"run_id"`
	}
	if err := e.postJSON(ctx, "/v1/threads/"+threadID+"/runs", create, &created); err != nil {
		return nil, err
	}

	for i := 0; i < e.pollLimit; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.pollInterval):
		}

		var status struct {
			Status      string             `json:"status"`
			Text        string             `json:"text"`
			Annotations []model.Annotation `json:"annotations"`
		}
		if err := e.getJSON(ctx, "/v1/threads/"+threadID+"/runs/"+created.RunID, &status); err != nil {
			return nil, err
		}
		switch status.Status {
		case "completed":
			return &RunResult{Text: status.Text, Annotations: status.Annotations}, nil
		case "failed", "cancelled", "expired":
			return nil, fmt.Errorf("%w: run %s %s", model.ErrEngineFailed, created.RunID, status.Status)
		}
		// queued / in_progress: keep polling
	}
	return nil, fmt.Errorf("%w: run %s still pending after %d polls", model.ErrEngineTimeout, created.RunID, e.pollLimit)
}

func (e *HTTPEngine) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.do(req, out)
}

func (e *HTTPEngine) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	return e.do(req, out)
}

func (e *HTTPEngine) do(req *http.Request, out any) error {
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: engine: %v", model.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: engine returned %d for %s", model.ErrEngineFailed, resp.StatusCode, req.URL.Path)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("engine returned %d for %s", resp.StatusCode, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode engine response: %w", err)
	}
	return nil
}
