package chat

import "time"

// TextMessageKind is the only snippet.type the parser keeps.
const TextMessageKind = "textMessageEvent"

// Message is one validated chat message.
type Message struct {
	ID          string
	DisplayName string
	Timestamp   time.Time
	Content     string
}

// Page is a parsed liveChat/messages response.
type Page struct {
	NextPageToken string
	PollInterval  time.Duration
	Messages      []Message
	Dropped       int
}
