package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hyperjump/benkyo/internal/models"
	"github.com/hyperjump/benkyo/internal/session"
)

// apiClient talks to a running benkyo server so the CLI does not write the
// knowledge base files behind the server's back.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{base: base, http: &http.Client{Timeout: 5 * time.Minute}}
}

// reachable reports whether the server answers its health check.
func (c *apiClient) reachable(ctx context.Context) bool {
	if c.base == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *apiClient) ask(ctx context.Context, q models.QueryRequest) (*models.Answer, error) {
	var out models.Answer
	return &out, c.do(ctx, http.MethodPost, "/api/v1/query", q, http.StatusOK, &out)
}

func (c *apiClient) addDocument(ctx context.Context, path string) (*models.IngestResult, error) {
	var out models.IngestResult
	return &out, c.do(ctx, http.MethodPost, "/api/v1/documents", map[string]string{"path": path}, http.StatusCreated, &out)
}

func (c *apiClient) clear(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/documents", nil, http.StatusOK, nil)
}

func (c *apiClient) info(ctx context.Context) (models.DocumentsInfo, error) {
	var out models.DocumentsInfo
	err := c.do(ctx, http.MethodGet, "/api/v1/documents", nil, http.StatusOK, &out)
	return out, err
}

func (c *apiClient) history(ctx context.Context, limit int) ([]*models.Interaction, error) {
	var out struct {
		Interactions []*models.Interaction `json:"interactions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/history?limit="+strconv.Itoa(limit), nil, http.StatusOK, &out)
	return out.Interactions, err
}

func (c *apiClient) deleteInteraction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/history/"+url.PathEscape(id), nil, http.StatusOK, nil)
}

func (c *apiClient) status(ctx context.Context) (*session.Status, error) {
	var out struct {
		Status session.Status `json:"status"`
	}
	return &out.Status, c.do(ctx, http.MethodGet, "/api/v1/status", nil, http.StatusOK, &out)
}

func (c *apiClient) watchList(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/watch/directories", nil, http.StatusOK, &out)
	return out.Directories, err
}

func (c *apiClient) watchAdd(ctx context.Context, path string) error {
	body := map[string]interface{}{"path": path, "sync": true}
	return c.do(ctx, http.MethodPost, "/api/v1/watch/directories", body, http.StatusCreated, nil)
}

func (c *apiClient) watchRemove(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, http.StatusOK, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}, wantStatus int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
