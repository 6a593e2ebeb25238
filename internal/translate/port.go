package translate

import (
	"context"
	"fmt"
)

// Port is the boundary to the external text-translation capability. The
// flow only ever sees this call; prompt design, retries, and authentication
// live behind it.
type Port interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Error reports a backend failure: process error, malformed response, or
// timeout.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("translation failed: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Broadcaster receives progress and request/response events for real-time
// monitoring. A nil broadcaster disables event streaming.
type Broadcaster interface {
	BroadcastMessage(msgType string, data interface{})
	BroadcastLog(level, message, module string)
}
