package observability

import (
	"context"
	"errors"
)

const (
	ErrorNetwork   = "network"
	ErrorParsing   = "parsing"
	ErrorAuth      = "auth"
	ErrorRateLimit = "rate_limit"
	ErrorRender    = "render"
	ErrorStore     = "store"
	ErrorCanceled  = "canceled"
	ErrorUnknown   = "unknown"
)

// kinded is implemented by the typed errors of the fetch, scrape and store layers.
type kinded interface {
	ErrorKind() string
}

func ClassifyError(err error) string {
	if err == nil {
		return ErrorUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCanceled
	}
	var k kinded
	if errors.As(err, &k) {
		if kind := k.ErrorKind(); kind != "" {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorNetwork
	}
	return ErrorUnknown
}

// RecordError counts err under its classified kind for the given pipeline stage.
func RecordError(err error, stage string) {
	if err == nil {
		return
	}
	IncError(ClassifyError(err), stage)
}
