// Package ai provides the OpenAI-backed analysis and speech adapters.
package ai

import (
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// newClient builds an OpenAI client, optionally pointed at a compatible API.
func newClient(apiKey, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// isRateLimited reports whether the provider rejected the call for quota
// reasons. Callers translate this to domain.ErrRateLimited so the import
// pipeline can apply its bounded backoff.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
