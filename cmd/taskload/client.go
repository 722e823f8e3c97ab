package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/seantiz/taskengine/internal/model"
)

// client talks to a running taskengine server.
type client struct {
	baseURL string
	http    *http.Client
	token   string
}

func newClient(baseURL, secret string) (*client, error) {
	c := &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if secret == "" {
		return c, nil
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "taskload",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	c.token = signed
	return c, nil
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *client) submit(ctx context.Context, name string, priority int) (uuid.UUID, error) {
	body, err := json.Marshal(map[string]any{"name": name, "priority": priority})
	if err != nil {
		return uuid.Nil, err
	}

	var resp struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", body, http.StatusAccepted, &resp); err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

func (c *client) task(ctx context.Context, id uuid.UUID) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodGet, "/v1/tasks/"+id.String(), nil, http.StatusOK, &t)
	return t, err
}

// waitTerminal polls a task until it finishes or ctx ends.
func (c *client) waitTerminal(ctx context.Context, id uuid.UUID, every time.Duration) (model.Task, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		t, err := c.task(ctx, id)
		if err != nil {
			return model.Task{}, err
		}
		if t.Status.Terminal() {
			return t, nil
		}

		select {
		case <-ctx.Done():
			return t, fmt.Errorf("task %s still %s: %w", id, t.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *client) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
