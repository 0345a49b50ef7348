package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func textItem(id, name, published, text string) string {
	return `{"id":"` + id + `","snippet":{"type":"textMessageEvent","publishedAt":"` + published +
		`","displayMessage":"` + text + `"},"authorDetails":{"displayName":"` + name + `"}}`
}

func TestParseResponse(t *testing.T) {
	body := `{"nextPageToken":"tok-2","pollingIntervalMillis":2500,"items":[` +
		textItem("m1", "Alice", "2026-03-01T15:04:05Z", "hello") + `,` +
		`{"id":"m2","snippet":{"type":"superChatEvent","publishedAt":"2026-03-01T15:04:06Z"},"authorDetails":{"displayName":"Bob"}},` +
		`{"id":"m3","snippet":{"type":"textMessageEvent","publishedAt":"2026-03-01T15:04:07Z"},"authorDetails":{"displayName":"Carol"}},` +
		`"not an object",` +
		textItem("m5", "Dave", "2026-03-01T15:04:08.123+01:00", "bye") + `]}`

	page, err := ParseResponse([]byte(body))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if page.NextPageToken != "tok-2" {
		t.Errorf("NextPageToken = %q", page.NextPageToken)
	}
	if page.PollInterval != 2500*time.Millisecond {
		t.Errorf("PollInterval = %v", page.PollInterval)
	}
	if len(page.Messages) != 2 || page.Dropped != 3 {
		t.Fatalf("messages = %d dropped = %d, want 2 and 3", len(page.Messages), page.Dropped)
	}
	first, second := page.Messages[0], page.Messages[1]
	if first.ID != "m1" || first.DisplayName != "Alice" || first.Content != "hello" {
		t.Errorf("first = %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2026, 3, 1, 15, 4, 5, 0, time.UTC)) {
		t.Errorf("first timestamp = %v", first.Timestamp)
	}
	if second.DisplayName != "Dave" {
		t.Errorf("order not preserved: second = %+v", second)
	}
}

func TestParseResponseMissingItemsIsEmpty(t *testing.T) {
	page, err := ParseResponse([]byte(`{"nextPageToken":"t","pollingIntervalMillis":0}`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if len(page.Messages) != 0 || page.PollInterval != 0 {
		t.Errorf("page = %+v", page)
	}
}

func TestParseResponseIntervalBounds(t *testing.T) {
	page, err := ParseResponse([]byte(`{"nextPageToken":"t","pollingIntervalMillis":9223372036854}`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if page.PollInterval <= 0 {
		t.Errorf("PollInterval = %v, want positive", page.PollInterval)
	}
}

func TestParseResponseEmptyToken(t *testing.T) {
	page, err := ParseResponse([]byte(`{"nextPageToken":"","pollingIntervalMillis":1000,"items":[]}`))
	if err != nil {
		t.Fatalf("ParseResponse() error = %v", err)
	}
	if page.NextPageToken != "" {
		t.Errorf("NextPageToken = %q, want empty", page.NextPageToken)
	}
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "not json", body: `{`, field: "body"},
		{name: "missing interval", body: `{"nextPageToken":"t","items":[]}`, field: "pollingIntervalMillis"},
		{name: "null interval", body: `{"nextPageToken":"t","pollingIntervalMillis":null}`, field: "pollingIntervalMillis"},
		{name: "negative interval", body: `{"nextPageToken":"t","pollingIntervalMillis":-1}`, field: "pollingIntervalMillis"},
		{name: "fractional interval", body: `{"nextPageToken":"t","pollingIntervalMillis":1.5}`, field: "pollingIntervalMillis"},
		{name: "interval overflows duration", body: `{"nextPageToken":"t","pollingIntervalMillis":9300000000000,"items":[]}`, field: "pollingIntervalMillis"},
		{name: "interval beyond int64", body: `{"nextPageToken":"t","pollingIntervalMillis":1e30}`, field: "pollingIntervalMillis"},
		{name: "string interval", body: `{"nextPageToken":"t","pollingIntervalMillis":"1000"}`, field: "pollingIntervalMillis"},
		{name: "missing token", body: `{"pollingIntervalMillis":1000,"items":[]}`, field: "nextPageToken"},
		{name: "numeric token", body: `{"pollingIntervalMillis":1000,"nextPageToken":7}`, field: "nextPageToken"},
		{name: "items not array", body: `{"pollingIntervalMillis":1000,"nextPageToken":"t","items":{}}`, field: "items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse([]byte(tt.body))
			var rpe *ResponseParseError
			if !errors.As(err, &rpe) {
				t.Fatalf("error = %v, want *ResponseParseError", err)
			}
			if rpe.Field != tt.field {
				t.Errorf("Field = %q, want %q", rpe.Field, tt.field)
			}
		})
	}
}

func TestParseItem(t *testing.T) {
	tests := []struct {
		name        string
		item        string
		unsupported bool
		field       string
	}{
		{name: "unsupported kind", item: `{"snippet":{"type":"newSponsorEvent"}}`, unsupported: true},
		{name: "no snippet", item: `{"authorDetails":{"displayName":"A"}}`, field: "snippet.type"},
		{name: "no author", item: `{"snippet":{"type":"textMessageEvent","publishedAt":"2026-01-01T00:00:00Z","displayMessage":"x"}}`, field: "authorDetails.displayName"},
		{name: "no timestamp", item: `{"snippet":{"type":"textMessageEvent","displayMessage":"x"},"authorDetails":{"displayName":"A"}}`, field: "snippet.publishedAt"},
		{name: "bad timestamp", item: textItem("i", "A", "yesterday", "x"), field: "snippet.publishedAt"},
		{name: "no content", item: `{"snippet":{"type":"textMessageEvent","publishedAt":"2026-01-01T00:00:00Z"},"authorDetails":{"displayName":"A"}}`, field: "snippet.displayMessage"},
		{name: "wrong type", item: `{"snippet":{"type":"textMessageEvent","publishedAt":"2026-01-01T00:00:00Z","displayMessage":5},"authorDetails":{"displayName":"A"}}`, field: "item"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseItem(json.RawMessage(tt.item))
			if tt.unsupported {
				if !errors.Is(err, ErrUnsupportedKind) {
					t.Fatalf("error = %v, want ErrUnsupportedKind", err)
				}
				return
			}
			var ipe *ItemParseError
			if !errors.As(err, &ipe) {
				t.Fatalf("error = %v, want *ItemParseError", err)
			}
			if ipe.Field != tt.field {
				t.Errorf("Field = %q, want %q", ipe.Field, tt.field)
			}
		})
	}
}

func TestParseItemEmptyContentAllowed(t *testing.T) {
	msg, err := ParseItem(json.RawMessage(textItem("i", "A", "2026-01-01T00:00:00Z", "")))
	if err != nil {
		t.Fatalf("ParseItem() error = %v", err)
	}
	if msg.Content != "" || msg.DisplayName != "A" {
		t.Errorf("msg = %+v", msg)
	}
}
