package bot

import "errors"

var (
	// ErrBotQuery wraps every failure of a single upstream attempt. Callers
	// treat all of them as retryable.
	ErrBotQuery = errors.New("bot query failed")

	// ErrEmptyResponse reports a well-formed response without any text part.
	ErrEmptyResponse = errors.New("response contained no text candidate")

	// ErrMissingAPIKey reports that no Gemini API key was configured.
	ErrMissingAPIKey = errors.New("gemini api key is not configured")
)
