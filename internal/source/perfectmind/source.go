// Package perfectmind fetches activity listings from PerfectMind-style
// registration sites that expose a paginated JSON catalogue.
package perfectmind

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"activity_sync/internal/domain"
	"activity_sync/internal/normalize"
)

const Platform = "perfectmind"

// Config holds the platform-wide defaults; individual providers may
// override base URL and page size through their config blob.
type Config struct {
	BaseURL        string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Source struct {
	httpClient     *http.Client
	baseURL        string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("platform", Platform),
	}
}

func (s *Source) Platform() string {
	return Platform
}

// Mapping returns the declarative extraction table for this platform's
// raw record shape.
func (s *Source) Mapping() normalize.Mapping {
	return ActivityMapping
}

type providerSettings struct {
	BaseURL  string `json:"base_url"`
	PageSize int    `json:"page_size"`
}

// FetchRecords walks the provider's catalogue page by page and returns
// the raw records untouched; normalization happens downstream.
func (s *Source) FetchRecords(ctx context.Context, provider domain.Provider) ([]normalize.RawRecord, error) {
	settings := providerSettings{BaseURL: s.baseURL, PageSize: s.pageSize}
	if len(provider.Config) > 0 {
		if err := json.Unmarshal(provider.Config, &settings); err != nil {
			return nil, fmt.Errorf("parse provider config: %w", err)
		}
		if settings.BaseURL == "" {
			settings.BaseURL = s.baseURL
		}
		if settings.PageSize == 0 {
			settings.PageSize = s.pageSize
		}
	}

	var records []normalize.RawRecord
	for page := 0; ; page++ {
		resp, err := s.fetchPage(ctx, settings, page)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		records = append(records, resp.Items...)

		s.logger.Debug("fetched page",
			"provider_id", provider.ID,
			"page", page,
			"records", len(resp.Items),
			"total", len(records),
		)

		if page >= resp.TotalPages-1 {
			break
		}
	}

	return records, nil
}

func (s *Source) fetchPage(ctx context.Context, settings providerSettings, page int) (*apiResponse, error) {
	url := fmt.Sprintf("%s?pageSize=%d&page=%d", settings.BaseURL, settings.PageSize, page)

	var resp *apiResponse
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		resp, err = s.doRequest(ctx, url)
		if err == nil {
			return resp, nil
		}

		if attempt == s.maxAttempts {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
}

func (s *Source) doRequest(ctx context.Context, url string) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ActivitySync/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &apiResp, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

type apiResponse struct {
	Page       int                   `json:"page"`
	TotalPages int                   `json:"totalPages"`
	Items      []normalize.RawRecord `json:"items"`
}
