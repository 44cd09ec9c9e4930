// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package executor calls a sync executor deployed behind HTTP, so the
// trigger endpoint can run without HubSpot or database credentials.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bcem/crmsync/internal/syncer"
)

// DefaultTimeout bounds a whole remote run, including every page.
const DefaultTimeout = 5 * time.Minute

// Envelope is the success body of the executor endpoint. Result is absent
// when the executor reports only a message.
type Envelope struct {
	Message string         `json:"message"`
	Result  *syncer.Result `json:"result,omitempty"`
}

// ErrorBody is the failure body of the executor endpoint.
type ErrorBody struct {
	Error string `json:"error"`
}

// RemoteError is returned when the executor answers with a non-2xx status.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("executor returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("executor returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Client invokes the executor endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
}

var _ syncer.Runner = (*Client)(nil)

// NewClient creates a client for the executor at url, authenticating with
// apiKey (the anon key). A nil httpClient gets DefaultTimeout.
func NewClient(httpClient *http.Client, url, apiKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{httpClient: httpClient, url: url, apiKey: apiKey}
}

// Run posts the request and returns the executor's result. An executor that
// answers 2xx with only a message reports success with a nil Result.
func (c *Client) Run(ctx context.Context, req syncer.Request) (*syncer.Result, error) {
	env, err := c.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return env.Result, nil
}

// Invoke posts the request and returns the executor's success body as
// decoded, so callers can relay it unchanged.
func (c *Client) Invoke(ctx context.Context, req syncer.Request) (*Envelope, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal executor request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build executor request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call executor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb ErrorBody
		_ = json.Unmarshal(raw, &eb)
		slog.Error("executor error", "status", resp.StatusCode, "body", string(raw))
		return nil, &RemoteError{StatusCode: resp.StatusCode, Message: eb.Error}
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode executor response: %w", err)
	}
	return &env, nil
}
