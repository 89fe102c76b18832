package openai

import (
	"context"
	"errors"

	"github.com/poiesic/photoscan/retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("openai: empty response")

// classifyError maps a langchaingo error onto the retry taxonomy.
// Requests the server refused for what they contain are permanent.
// Everything else (timeouts, rate limits, 5xx, refused connections) is retried.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	mapped := openai.MapError(err)
	switch {
	case llms.IsInvalidRequestError(mapped),
		llms.IsAuthenticationError(mapped),
		llms.IsContentFilterError(mapped),
		llms.IsTokenLimitError(mapped),
		llms.IsQuotaExceededError(mapped),
		isNotFound(mapped):
		return retry.Permanent(mapped)
	}
	return mapped
}

func isNotFound(err error) bool {
	var le *llms.Error
	return errors.As(err, &le) && le.Code == llms.ErrCodeResourceNotFound
}
