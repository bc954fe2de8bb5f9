package pilot

import "github.com/kaiho/pilot/llm"

// ChatError, ErrorKind, and the error-kind constants are re-exported under
// the pilot package name so a caller of Chat/ChatResume never needs to
// import llm directly just to do errors.As(err, &chatErr) or
// errors.Is(err, pilot.ErrCancelledSentinel).
type ChatError = llm.ChatError
type ErrorKind = llm.ErrorKind

const (
	ErrOther      = llm.ErrOther
	ErrApiAuth    = llm.ErrApiAuth
	ErrApiMessage = llm.ErrApiMessage
	ErrToolArgs   = llm.ErrToolArgs
	ErrCancelled  = llm.ErrCancelled
)

// ErrCancelledSentinel lets a caller write errors.Is(err, pilot.ErrCancelledSentinel)
// without constructing a *ChatError themselves.
var ErrCancelledSentinel = llm.ErrCancelledSentinel
