package ai

import "errors"

var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrMalformedResponse   = errors.New("ai provider returned malformed response")
)
