// File: internal/llmclient/errors.go
package llmclient

import "errors"

var (
	// ErrTimeout marks a completion call that ran out of its per-call budget.
	// Callers use errors.Is to distinguish this from transport failures when
	// deciding whether to fall back to a heuristic strategy.
	ErrTimeout = errors.New("llm call timed out")

	// ErrRateLimited marks a call rejected by the provider's quota.
	ErrRateLimited = errors.New("llm provider rate limited the request")

	// ErrEmptyResponse marks a transport-level success that carried no
	// usable content.
	ErrEmptyResponse = errors.New("llm returned an empty response")
)
