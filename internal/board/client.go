package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intelliquery/backend/internal/metrics"
	"github.com/intelliquery/backend/pkg/circuitbreaker"
	"github.com/intelliquery/backend/pkg/config"
	"github.com/intelliquery/backend/pkg/logger"
	"github.com/intelliquery/backend/pkg/retry"
)

var ErrBoardNotConfigured = errors.New("board id not configured")

const (
	itemsQuery = `query ($boardId: [ID!], $limit: Int!) {
  boards(ids: $boardId) {
    items_page(limit: $limit) {
      cursor
      items { id name column_values { id text value type } }
    }
  }
}`

	nextItemsQuery = `query ($cursor: String!, $limit: Int!) {
  next_items_page(cursor: $cursor, limit: $limit) {
    cursor
    items { id name column_values { id text value type } }
  }
}`

	columnsQuery = `query ($boardId: [ID!]) {
  boards(ids: $boardId) { columns { id title type } }
}`

	meQuery = `query { me { id name } }`
)

type Client struct {
	apiURL           string
	apiKey           string
	apiVersion       string
	dealBoardID      string
	workOrderBoardID string
	pageLimit        int
	httpClient       *http.Client
	cb               *circuitbreaker.CircuitBreaker
	retryConfig      retry.Config
}

func NewClient(cfg config.BoardConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 || pageLimit > 500 {
		pageLimit = 500
	}

	cb := circuitbreaker.NewCircuitBreaker("board", circuitbreaker.Config{
		MaxRequests:      2,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !retry.IsPermanent(err) && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, _ circuitbreaker.State, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.GetLogger(),
	})

	logger.Info("Board client initialized",
		zap.String("api_url", cfg.APIURL),
		zap.String("api_version", cfg.APIVersion),
		zap.Int("page_limit", pageLimit),
	)

	return &Client{
		apiURL:           cfg.APIURL,
		apiKey:           cfg.APIKey,
		apiVersion:       cfg.APIVersion,
		dealBoardID:      cfg.DealBoardID,
		workOrderBoardID: cfg.WorkOrderBoardID,
		pageLimit:        pageLimit,
		httpClient:       &http.Client{Timeout: timeout},
		cb:               cb,
		retryConfig: retry.Config{
			Name:           "board",
			MaxAttempts:    3,
			InitialDelay:   500 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
			Logger:         logger.GetLogger(),
		},
	}
}

func (c *Client) execute(ctx context.Context, operation, query string, variables map[string]interface{}, out interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", operation, err)
	}

	start := time.Now()
	err = c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			return c.post(ctx, body, out)
		})
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BoardRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())

	if err != nil {
		return fmt.Errorf("board %s failed: %w", operation, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("API-Version", c.apiVersion)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach board api: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("board api returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return retry.Permanent(statusErr)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return retry.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return retry.Permanent(fmt.Errorf("graphql errors: %s", strings.Join(messages, ", ")))
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return retry.Permanent(fmt.Errorf("failed to decode data: %w", err))
	}
	return nil
}

// FetchBoardItems returns every item on the board, following page cursors.
func (c *Client) FetchBoardItems(ctx context.Context, boardID string) ([]Item, error) {
	if boardID == "" {
		return nil, ErrBoardNotConfigured
	}

	logger.Info("Fetching board items", zap.String("board_id", boardID))

	var first struct {
		Boards []struct {
			ItemsPage itemsPage `json:"items_page"`
		} `json:"boards"`
	}
	err := c.execute(ctx, "items_page", itemsQuery, map[string]interface{}{
		"boardId": []string{boardID},
		"limit":   c.pageLimit,
	}, &first)
	if err != nil {
		return nil, err
	}

	if len(first.Boards) == 0 {
		logger.Warn("No board found", zap.String("board_id", boardID))
		return nil, nil
	}

	page := first.Boards[0].ItemsPage
	items := append([]Item(nil), page.Items...)

	for page.Cursor != nil && *page.Cursor != "" {
		var next struct {
			NextItemsPage itemsPage `json:"next_items_page"`
		}
		err := c.execute(ctx, "next_items_page", nextItemsQuery, map[string]interface{}{
			"cursor": *page.Cursor,
			"limit":  c.pageLimit,
		}, &next)
		if err != nil {
			return nil, err
		}
		page = next.NextItemsPage
		items = append(items, page.Items...)
	}

	metrics.BoardItemsFetched.WithLabelValues(boardID).Add(float64(len(items)))
	logger.Info("Fetched board items",
		zap.String("board_id", boardID),
		zap.Int("items", len(items)),
	)

	return items, nil
}

func (c *Client) FetchDeals(ctx context.Context) ([]Item, error) {
	if c.dealBoardID == "" {
		return nil, fmt.Errorf("deal board: %w", ErrBoardNotConfigured)
	}
	return c.FetchBoardItems(ctx, c.dealBoardID)
}

func (c *Client) FetchWorkOrders(ctx context.Context) ([]Item, error) {
	if c.workOrderBoardID == "" {
		return nil, fmt.Errorf("work order board: %w", ErrBoardNotConfigured)
	}
	return c.FetchBoardItems(ctx, c.workOrderBoardID)
}

// GetBoardColumns lists the column definitions of a board, used to check the
// column schema against what the board actually exposes.
func (c *Client) GetBoardColumns(ctx context.Context, boardID string) ([]Column, error) {
	if boardID == "" {
		return nil, ErrBoardNotConfigured
	}

	var out struct {
		Boards []struct {
			Columns []Column `json:"columns"`
		} `json:"boards"`
	}
	err := c.execute(ctx, "columns", columnsQuery, map[string]interface{}{
		"boardId": []string{boardID},
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Boards) == 0 {
		return nil, nil
	}
	return out.Boards[0].Columns, nil
}

func (c *Client) TestConnection(ctx context.Context) error {
	var out struct {
		Me struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"me"`
	}
	if err := c.execute(ctx, "me", meQuery, nil, &out); err != nil {
		return err
	}
	if out.Me.ID == "" {
		return errors.New("board api returned no user")
	}

	logger.Info("Connected to board api", zap.String("user", out.Me.Name))
	return nil
}
