/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prices

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptopay-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const maxResponseBytes = 1 << 20

// Feed fetches current quotes for the tracked assets.
type Feed interface {
	FetchQuotes(ctx context.Context) ([]models.PriceQuote, error)
}

// Client reads quotes from the CoinGecko simple price API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	assets     []models.Asset
	now        func() time.Time
}

var _ Feed = (*Client)(nil)

func NewClient(cfg models.PriceConfig, assets []models.Asset) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("price api url cannot be empty")
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("no assets to price")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient, err := createCustomHttpClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	return newClient(httpClient, cfg.APIURL, assets), nil
}

func newClient(httpClient *http.Client, baseURL string, assets []models.Asset) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		assets:     assets,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: timeout,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   5 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func (c *Client) FetchQuotes(ctx context.Context) ([]models.PriceQuote, error) {
	ids := make([]string, len(c.assets))
	for i, asset := range c.assets {
		ids[i] = asset.CoingeckoId
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	endpoint := c.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("unable to read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api returned status %d", resp.StatusCode)
	}

	return c.parseQuotes(body)
}

// parseQuotes extracts one quote per asset. Assets missing from the payload are skipped.
func (c *Client) parseQuotes(body []byte) ([]models.PriceQuote, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("price api returned malformed json")
	}

	fetchedAt := c.now()
	quotes := make([]models.PriceQuote, 0, len(c.assets))
	for _, asset := range c.assets {
		entry := gjson.GetBytes(body, gjson.Escape(asset.CoingeckoId))
		usd := entry.Get("usd")
		if !usd.Exists() {
			zap.L().Warn("Price missing from feed", zap.String("symbol", asset.Symbol), zap.String("id", asset.CoingeckoId))
			continue
		}

		price, err := decimal.NewFromString(usd.Raw)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", asset.Symbol, err)
		}

		change := decimal.Zero
		if raw := entry.Get("usd_24h_change"); raw.Exists() {
			change = decimal.NewFromFloat(raw.Float()).Round(4)
		}

		quotes = append(quotes, models.PriceQuote{
			Symbol:         asset.Symbol,
			Name:           asset.Name,
			Price:          price,
			PriceChange24h: change,
			FetchedAt:      fetchedAt,
		})
	}
	return quotes, nil
}
