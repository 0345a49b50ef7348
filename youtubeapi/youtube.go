// Package youtubeapi resolves YouTube video URLs and channel handles to live
// chat ids and fetches raw liveChat/messages pages. Resource lookups go
// through google.golang.org/api/youtube/v3; the messages page is fetched with
// a plain GET so the chat parser can see which top-level fields are present.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/csb6/purple-youtube/telemetry"
)

const tracerName = "youtubeapi"

// DefaultBaseURL is the API root every request path is appended to.
const DefaultBaseURL = "https://youtube.googleapis.com/"

const (
	messagesPath   = "youtube/v3/liveChat/messages"
	messagesParts  = "snippet,authorDetails"
	messagesFields = "nextPageToken,pollingIntervalMillis,items(id,authorDetails(displayName),snippet(type,publishedAt,displayMessage))"
	videoFields    = "items(snippet(title),liveStreamingDetails(activeLiveChatId))"
)

var (
	ErrMalformedURL    = errors.New("youtubeapi: stream url has no video id")
	ErrStreamNotFound  = errors.New("youtubeapi: stream not found or not live")
	ErrChannelNotFound = errors.New("youtubeapi: channel not found")
)

// StreamInfo identifies a live broadcast and its chat.
type StreamInfo struct {
	VideoID    string
	Title      string
	LiveChatID string
}

// APIError is a non-2xx response from the messages endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("youtubeapi: HTTP %d", e.Status)
	}
	return fmt.Sprintf("youtubeapi: HTTP %d: %s", e.Status, e.Body)
}

// ExtractVideoID returns the v query parameter of a watch URL.
func ExtractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	id := u.Query().Get("v")
	if id == "" {
		return "", ErrMalformedURL
	}
	return id, nil
}

// Service talks to the YouTube Data API through an authenticated client.
type Service struct {
	yt      *yt.Service
	http    *http.Client
	baseURL string
}

// New builds a Service. The client must already attach credentials (see
// APIKeyTransport and oauth2.Transport). An empty baseURL means DefaultBaseURL.
func New(ctx context.Context, client *http.Client, baseURL string) (*Service, error) {
	if client == nil {
		return nil, errors.New("youtubeapi: nil http client")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	svc, err := yt.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(baseURL))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Service{yt: svc, http: client, baseURL: baseURL}, nil
}

// StreamInfo resolves a video id to its title and active live chat id. The
// response must hold exactly one item carrying both.
func (s *Service) StreamInfo(ctx context.Context, videoID string) (StreamInfo, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "videos.list", attribute.String("youtube.video_id", videoID))
	defer span.End()

	resp, err := s.yt.Videos.List([]string{"snippet", "liveStreamingDetails"}).
		Id(videoID).
		Fields(videoFields).
		Context(ctx).
		Do()
	if err != nil {
		telemetry.RecordError(span, err)
		return StreamInfo{}, fmt.Errorf("videos.list: %w", err)
	}
	if len(resp.Items) != 1 {
		telemetry.RecordError(span, ErrStreamNotFound)
		return StreamInfo{}, fmt.Errorf("%w: %d items for video %s", ErrStreamNotFound, len(resp.Items), videoID)
	}
	item := resp.Items[0]
	if item.Snippet == nil || item.Snippet.Title == "" {
		telemetry.RecordError(span, ErrStreamNotFound)
		return StreamInfo{}, fmt.Errorf("%w: video %s has no title", ErrStreamNotFound, videoID)
	}
	if item.LiveStreamingDetails == nil || item.LiveStreamingDetails.ActiveLiveChatId == "" {
		telemetry.RecordError(span, ErrStreamNotFound)
		return StreamInfo{}, fmt.Errorf("%w: video %s has no active live chat", ErrStreamNotFound, videoID)
	}
	telemetry.SetSpanSuccess(span)
	return StreamInfo{
		VideoID:    videoID,
		Title:      item.Snippet.Title,
		LiveChatID: item.LiveStreamingDetails.ActiveLiveChatId,
	}, nil
}

// ChannelID resolves an @handle to a channel id.
func (s *Service) ChannelID(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	ctx, span := telemetry.StartSpan(ctx, tracerName, "channels.list", attribute.String("youtube.handle", handle))
	defer span.End()

	resp, err := s.yt.Channels.List([]string{"id"}).
		ForHandle(handle).
		Fields("items/id").
		Context(ctx).
		Do()
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("channels.list: %w", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Id == "" {
		telemetry.RecordError(span, ErrChannelNotFound)
		return "", fmt.Errorf("%w: %s", ErrChannelNotFound, handle)
	}
	telemetry.SetSpanSuccess(span)
	return resp.Items[0].Id, nil
}

// LiveStreams lists the ids of a channel's live videos, newest first.
func (s *Service) LiveStreams(ctx context.Context, channelID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "search.list", attribute.String("youtube.channel_id", channelID))
	defer span.End()

	resp, err := s.yt.Search.List([]string{"snippet", "id"}).
		ChannelId(channelID).
		EventType("live").
		Order("date").
		Type("video").
		Fields("items/id/videoId").
		Context(ctx).
		Do()
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("search.list: %w", err)
	}
	ids := make([]string, 0, len(resp.Items))
	for i, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			slog.Warn("search result without video id", slog.String("component", "youtubeapi"), slog.Int("index", i))
			continue
		}
		ids = append(ids, item.Id.VideoId)
	}
	telemetry.SetSpanSuccess(span)
	return ids, nil
}

// ChatMessages fetches one raw liveChat/messages page. A nil pageToken omits
// the parameter; any other value is sent verbatim, including "".
func (s *Service) ChatMessages(ctx context.Context, liveChatID string, pageToken *string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "liveChatMessages.list",
		attribute.String("youtube.live_chat_id", liveChatID),
		attribute.Bool("youtube.has_page_token", pageToken != nil))
	defer span.End()

	q := url.Values{}
	q.Set("liveChatId", liveChatID)
	q.Set("part", messagesParts)
	q.Set("fields", messagesFields)
	if pageToken != nil {
		q.Set("pageToken", *pageToken)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+messagesPath+"?"+q.Encode(), nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("messages request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("read messages body: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		telemetry.RecordError(span, apiErr)
		return nil, apiErr
	}
	telemetry.SetSpanSuccess(span)
	return body, nil
}
