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

// Package hubspot provides a paged contacts reader for the HubSpot CRM API.
// Authentication is handled by the http.Client passed in (see NewHTTPClient).
package hubspot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the root of the HubSpot API.
	DefaultBaseURL = "https://api.hubapi.com"

	// MaxPageSize is the largest page the CRM v3 list endpoints accept.
	MaxPageSize = 100

	contactsPath = "/crm/v3/objects/contacts"
)

// StatusError is returned when HubSpot answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hubspot API returned HTTP %d", e.StatusCode)
}

// Client lists HubSpot contacts one page at a time.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	limiter    *rate.Limiter
}

// ClientConfig holds the settings for a contacts client.
type ClientConfig struct {
	HTTPClient        *http.Client
	BaseURL           string
	PageSize          int
	RequestsPerSecond float64 // zero disables client-side throttling
}

// NewClient creates a HubSpot contacts client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		pageSize:   pageSize,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// ListContacts fetches the page of contacts that starts at the given cursor.
// An empty cursor starts from the beginning.
func (c *Client) ListContacts(ctx context.Context, after string) (*Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(c.pageSize))
	params.Set("properties", strings.Join(ContactProperties, ","))
	params.Set("archived", "false")
	if after != "" {
		params.Set("after", after)
	}

	pageURL := fmt.Sprintf("%s%s?%s", c.baseURL, contactsPath, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch contacts page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("hubspot contacts error", "status", resp.StatusCode, "body", string(body))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	page, err := parseContactsPage(resp.Body)
	if err != nil {
		return nil, err
	}

	slog.Debug("hubspot contacts page fetched",
		"after", after,
		"contacts", len(page.Contacts),
		"next", page.NextAfter,
	)

	return page, nil
}
