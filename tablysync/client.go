package tablysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type tablyClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	pageSize  int
	http      *http.Client
	limiter   <-chan time.Time
}

func newTablyClient(apiKey string) (*tablyClient, error) {
	baseURL := strings.TrimSpace(os.Getenv("TABLY_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.tably.io"
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("TABLY_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("tably api key is empty")
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("TABLY_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	pageSize := 200
	if v := strings.TrimSpace(os.Getenv("TABLY_PAGE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			pageSize = n
		}
	}

	return &tablyClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		pageSize:  pageSize,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiter:   time.Tick(interval),
	}, nil
}

type tablyListResponse struct {
	Data       []json.RawMessage `json:"data"`
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"next_cursor"`
	HasMore    *bool             `json:"has_more"`
}

func (c *tablyClient) getList(ctx context.Context, path string, params url.Values) (tablyListResponse, error) {
	<-c.limiter
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint = endpoint + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return tablyListResponse{}, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return tablyListResponse{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tablyListResponse{}, fmt.Errorf("tably api error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed tablyListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tablyListResponse{}, err
	}
	return parsed, nil
}

// fetchOrders pulls every closed order in the window, following the cursor
// until the provider reports the end. onPage fires after each page so long
// pulls can report progress.
func (c *tablyClient) fetchOrders(ctx context.Context, window dateWindow, onPage func(page, fetched int)) ([]json.RawMessage, error) {
	ordersPath := strings.TrimSpace(os.Getenv("TABLY_ORDERS_PATH"))
	if ordersPath == "" {
		ordersPath = "/v1/orders"
	}

	var orders []json.RawMessage
	nextCursor := ""
	page := 0

	for {
		params := url.Values{}
		params.Set("business_date_from", window.Start.String())
		params.Set("business_date_to", window.End.String())
		if nextCursor != "" {
			params.Set("cursor", nextCursor)
		}
		params.Set("limit", strconv.Itoa(c.pageSize))

		resp, err := c.getList(ctx, ordersPath, params)
		if err != nil {
			return nil, err
		}

		items := resp.Data
		if len(items) == 0 {
			items = resp.Items
		}
		orders = append(orders, items...)
		page++
		if onPage != nil {
			onPage(page, len(orders))
		}

		if resp.NextCursor == "" || (resp.HasMore != nil && !*resp.HasMore) {
			return orders, nil
		}
		nextCursor = resp.NextCursor
	}
}
