package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/otarik/minerva/pkg/retry"
	"github.com/rs/zerolog"
)

const searchHTTPTimeout = 15 * time.Second

// searchClient is the shared HTTP plumbing for the external search tools.
type searchClient struct {
	httpClient *http.Client
	retry      *retry.Executor
	logger     zerolog.Logger
}

func newSearchClient(exec *retry.Executor, logger zerolog.Logger) *searchClient {
	return &searchClient{
		httpClient: &http.Client{Timeout: searchHTTPTimeout},
		retry:      exec,
		logger:     logger,
	}
}

// get fetches a URL through the retry executor, converting 429 responses
// into rate-limit errors with the Retry-After hint.
func (c *searchClient) get(ctx context.Context, target string) ([]byte, error) {
	return retry.Do1(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			var hint time.Duration
			if v := resp.Header.Get("Retry-After"); v != "" {
				if secs, perr := strconv.Atoi(v); perr == nil {
					hint = time.Duration(secs) * time.Second
				}
			}
			return nil, &retry.RateLimitError{RetryAfter: hint, Err: fmt.Errorf("status 429")}
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		return body, nil
	})
}

// NewWikipedia returns the encyclopedic search tool backed by the
// MediaWiki query API.
func NewWikipedia(exec *retry.Executor, logger zerolog.Logger) Tool {
	client := newSearchClient(exec, logger.With().Str("tool", "wikipedia").Logger())

	return Tool{
		Name:        "wikipedia",
		Description: "Search Wikipedia for general information",
		Param:       "query",
		Invoke: func(ctx context.Context, query string) Observation {
			params := url.Values{}
			params.Set("action", "query")
			params.Set("generator", "search")
			params.Set("gsrsearch", query)
			params.Set("gsrlimit", "2")
			params.Set("prop", "extracts")
			params.Set("exintro", "1")
			params.Set("explaintext", "1")
			params.Set("format", "json")

			body, err := client.get(ctx, "https://en.wikipedia.org/w/api.php?"+params.Encode())
			if err != nil {
				client.logger.Error().Err(err).Str("query", query).Msg("Wikipedia search failed")
				return ErrorObservation("Wikipedia search failed.", err)
			}

			var result struct {
				Query struct {
					Pages map[string]struct {
						Title   string `json:"title"`
						Extract string `json:"extract"`
					} `json:"pages"`
				} `json:"query"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return ErrorObservation("Wikipedia returned an unreadable response.", err)
			}

			var sb strings.Builder
			for _, page := range result.Query.Pages {
				if page.Extract == "" {
					continue
				}
				fmt.Fprintf(&sb, "%s: %s\n\n", page.Title, truncate(page.Extract, 1500))
			}
			if sb.Len() == 0 {
				return ErrorObservation("No Wikipedia results found.", errNoResults)
			}
			return TextObservation(strings.TrimSpace(sb.String()))
		},
	}
}

// GoogleConfig holds Custom Search API credentials.
type GoogleConfig struct {
	APIKey string
	CSEID  string
}

// NewWebSearch returns the general web search tool backed by the Google
// Custom Search JSON API.
func NewWebSearch(cfg GoogleConfig, exec *retry.Executor, logger zerolog.Logger) Tool {
	client := newSearchClient(exec, logger.With().Str("tool", "web_search").Logger())

	return Tool{
		Name:        "web_search",
		Description: "Search the web. Useful for current events, everyday life, news, technical topics, errors or fixes.",
		Param:       "query",
		Invoke: func(ctx context.Context, query string) Observation {
			params := url.Values{}
			params.Set("key", cfg.APIKey)
			params.Set("cx", cfg.CSEID)
			params.Set("q", query)
			params.Set("num", "5")

			body, err := client.get(ctx, "https://www.googleapis.com/customsearch/v1?"+params.Encode())
			if err != nil {
				client.logger.Error().Err(err).Str("query", query).Msg("Web search failed")
				return ErrorObservation("Web search failed.", err)
			}

			var result struct {
				Items []struct {
					Title   string `json:"title"`
					Snippet string `json:"snippet"`
					Link    string `json:"link"`
				} `json:"items"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return ErrorObservation("Web search returned an unreadable response.", err)
			}
			if len(result.Items) == 0 {
				return ErrorObservation("No web results found.", errNoResults)
			}

			var sb strings.Builder
			for _, item := range result.Items {
				fmt.Fprintf(&sb, "%s\n%s\n%s\n\n", item.Title, item.Snippet, item.Link)
			}
			return TextObservation(strings.TrimSpace(sb.String()))
		},
	}
}

// NewWolframAlpha returns the computational-knowledge tool backed by the
// WolframAlpha short answers API.
func NewWolframAlpha(appID string, exec *retry.Executor, logger zerolog.Logger) Tool {
	client := newSearchClient(exec, logger.With().Str("tool", "wolfram_alpha").Logger())

	return Tool{
		Name:        "wolfram_alpha",
		Description: "Search Wolfram Alpha. Useful for science, weather, climate, engineering, technology, culture and society.",
		Param:       "query",
		Invoke: func(ctx context.Context, query string) Observation {
			params := url.Values{}
			params.Set("appid", appID)
			params.Set("i", query)

			body, err := client.get(ctx, "https://api.wolframalpha.com/v1/result?"+params.Encode())
			if err != nil {
				client.logger.Error().Err(err).Str("query", query).Msg("Wolfram Alpha query failed")
				return ErrorObservation("Wolfram Alpha query failed.", err)
			}

			answer := strings.TrimSpace(string(body))
			if answer == "" {
				return ErrorObservation("Wolfram Alpha had no answer.", errNoResults)
			}
			return TextObservation(answer)
		},
	}
}

var errNoResults = fmt.Errorf("no results")

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
