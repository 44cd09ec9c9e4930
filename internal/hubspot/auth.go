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

package hubspot

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/bcem/crmsync/internal/config"
)

// NewHTTPClient builds an authenticated HTTP client for the HubSpot API.
//
//   - With a refresh token, the OAuth app credentials are used to mint and
//     refresh access tokens through /oauth/v1/token.
//   - Otherwise the access token (a private app token) is sent as a static
//     bearer token.
func NewHTTPClient(ctx context.Context, cfg config.HubSpotConfig) *http.Client {
	var ts oauth2.TokenSource
	if cfg.RefreshToken != "" {
		baseURL := strings.TrimRight(cfg.BaseURL, "/")
		if baseURL == "" {
			baseURL = DefaultBaseURL
		}
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/oauth/v1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		// No access token: the first request mints one with a known expiry.
		ts = oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	} else {
		ts = oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.AccessToken,
			TokenType:   "Bearer",
		})
	}

	client := oauth2.NewClient(ctx, ts)
	client.Timeout = cfg.Timeout
	return client
}
