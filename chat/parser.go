package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/csb6/purple-youtube/telemetry"
)

// maxIntervalMillis is the largest interval that still fits a time.Duration.
const maxIntervalMillis = math.MaxInt64 / int64(time.Millisecond)

type rawItem struct {
	ID      string `json:"id"`
	Snippet *struct {
		Type           *string `json:"type"`
		PublishedAt    *string `json:"publishedAt"`
		DisplayMessage *string `json:"displayMessage"`
	} `json:"snippet"`
	AuthorDetails *struct {
		DisplayName *string `json:"displayName"`
	} `json:"authorDetails"`
}

// ParseResponse validates a liveChat/messages body. pollingIntervalMillis
// (non-negative integer that fits a time.Duration) and nextPageToken are
// required; an empty nextPageToken is still a token and is sent back as-is; a missing items
// array is an empty page. Items that fail ParseItem are dropped and counted.
func ParseResponse(body []byte) (Page, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return Page{}, &ResponseParseError{Field: "body", Err: err}
	}

	rawInterval, ok := present(top, "pollingIntervalMillis")
	if !ok {
		return Page{}, &ResponseParseError{Field: "pollingIntervalMillis"}
	}
	var ms int64
	if err := json.Unmarshal(rawInterval, &ms); err != nil {
		return Page{}, &ResponseParseError{Field: "pollingIntervalMillis", Err: err}
	}
	if ms < 0 {
		return Page{}, &ResponseParseError{Field: "pollingIntervalMillis", Err: fmt.Errorf("negative value %d", ms)}
	}
	if ms > maxIntervalMillis {
		return Page{}, &ResponseParseError{Field: "pollingIntervalMillis", Err: fmt.Errorf("value %d out of range", ms)}
	}

	rawToken, ok := present(top, "nextPageToken")
	if !ok {
		return Page{}, &ResponseParseError{Field: "nextPageToken"}
	}
	var token string
	if err := json.Unmarshal(rawToken, &token); err != nil {
		return Page{}, &ResponseParseError{Field: "nextPageToken", Err: err}
	}

	var items []json.RawMessage
	if rawItems, ok := present(top, "items"); ok {
		if err := json.Unmarshal(rawItems, &items); err != nil {
			return Page{}, &ResponseParseError{Field: "items", Err: err}
		}
	}

	page := Page{
		NextPageToken: token,
		PollInterval:  time.Duration(ms) * time.Millisecond,
		Messages:      make([]Message, 0, len(items)),
	}
	for i, raw := range items {
		msg, err := ParseItem(raw)
		if err != nil {
			page.Dropped++
			logDrop(i, err)
			continue
		}
		page.Messages = append(page.Messages, msg)
	}
	return page, nil
}

// ParseItem validates a single chat item.
func ParseItem(raw json.RawMessage) (Message, error) {
	var it rawItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return Message{}, &ItemParseError{Field: "item", Err: err}
	}
	if it.Snippet == nil || it.Snippet.Type == nil {
		return Message{}, &ItemParseError{Field: "snippet.type"}
	}
	if kind := *it.Snippet.Type; kind != TextMessageKind {
		return Message{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if it.AuthorDetails == nil || it.AuthorDetails.DisplayName == nil {
		return Message{}, &ItemParseError{Field: "authorDetails.displayName"}
	}
	if it.Snippet.PublishedAt == nil {
		return Message{}, &ItemParseError{Field: "snippet.publishedAt"}
	}
	ts, err := time.Parse(time.RFC3339Nano, *it.Snippet.PublishedAt)
	if err != nil {
		return Message{}, &ItemParseError{Field: "snippet.publishedAt", Err: err}
	}
	if it.Snippet.DisplayMessage == nil {
		return Message{}, &ItemParseError{Field: "snippet.displayMessage"}
	}
	return Message{
		ID:          it.ID,
		DisplayName: *it.AuthorDetails.DisplayName,
		Timestamp:   ts,
		Content:     *it.Snippet.DisplayMessage,
	}, nil
}

// present returns the raw value for key unless it is absent or null.
func present(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := m[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func logDrop(index int, err error) {
	if errors.Is(err, ErrUnsupportedKind) {
		telemetry.RecordDropped("unsupported")
		slog.Info("chat item skipped", slog.String("component", "chat_parser"), slog.Int("index", index), slog.Any("err", err))
		return
	}
	telemetry.RecordDropped("invalid")
	slog.Warn("chat item dropped", slog.String("component", "chat_parser"), slog.Int("index", index), slog.Any("err", err))
}
