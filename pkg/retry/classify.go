package retry

import (
	"errors"
	"strconv"
	"time"

	"github.com/openai/openai-go"
)

// FromOpenAI converts OpenAI SDK errors into *RateLimitError when the API
// responded with 429, preserving the Retry-After header as the hint. Other
// errors pass through unchanged so they propagate without retries.
func FromOpenAI(err error) error {
	if err == nil {
		return nil
	}

	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		return err
	}

	if apierr.StatusCode != 429 {
		return err
	}

	var hint time.Duration
	if apierr.Response != nil {
		if v := apierr.Response.Header.Get("Retry-After"); v != "" {
			if secs, perr := strconv.Atoi(v); perr == nil {
				hint = time.Duration(secs) * time.Second
			}
		}
	}

	return &RateLimitError{RetryAfter: hint, Err: err}
}
