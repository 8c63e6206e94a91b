package models

import "context"

// MessageEvent is one inbound chat message as delivered by the chat session.
// Media, when present, is fetched lazily through MediaFetcher.
type MessageEvent struct {
	ConversationID   string
	IsGroup          bool
	ConversationName string
	Body             string
	HasMedia         bool
	MediaFetcher     MediaFetcher
}

// Media is a downloaded attachment.
type Media struct {
	MimeType string
	Filename string
	Data     []byte
}

type MediaFetcher interface {
	Fetch(ctx context.Context) (*Media, error)
}

// MediaFetcherFunc adapts a function to MediaFetcher.
type MediaFetcherFunc func(ctx context.Context) (*Media, error)

func (f MediaFetcherFunc) Fetch(ctx context.Context) (*Media, error) {
	return f(ctx)
}
