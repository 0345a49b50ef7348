package chat

import (
	"errors"
	"fmt"
)

// ErrUnsupportedKind marks items whose snippet.type is not a text message.
var ErrUnsupportedKind = errors.New("chat: unsupported message kind")

// ResponseParseError reports a page whose top-level fields are missing or
// invalid. The page is discarded and poll state is left untouched.
type ResponseParseError struct {
	Field string
	Err   error
}

func (e *ResponseParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat: invalid response (%s): %v", e.Field, e.Err)
	}
	return fmt.Sprintf("chat: invalid response: missing %s", e.Field)
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// ItemParseError reports a text message missing a mandatory field.
type ItemParseError struct {
	Field string
	Err   error
}

func (e *ItemParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat: invalid item field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("chat: item missing %s", e.Field)
}

func (e *ItemParseError) Unwrap() error { return e.Err }

// PollRequestError wraps a failed liveChat/messages request.
type PollRequestError struct {
	LiveChatID string
	Err        error
}

func (e *PollRequestError) Error() string {
	return fmt.Sprintf("chat: poll request for %s failed: %v", e.LiveChatID, e.Err)
}

func (e *PollRequestError) Unwrap() error { return e.Err }
