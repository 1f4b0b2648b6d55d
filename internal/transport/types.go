package transport

import (
	"context"
	"io"
	"time"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

// Message is an inbound chat message.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	// AuthorMention is the platform mention string for the author (e.g. "<@123>").
	AuthorMention string
	Content       string
	At            time.Time
}

type Guild struct {
	ID   string
	Name string
}

type Channel struct {
	ID      string
	GuildID string
	Name    string
}

type MessageRef struct {
	ChannelID string
	MessageID string
}

// Poll is a native chat poll attached to an outgoing message.
type Poll struct {
	Question    string
	Answers     []string
	Duration    time.Duration
	MultiSelect bool
}

// File is an attachment ready to upload.
type File struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// OutgoingMessage is a composed message: text plus an optional poll or files.
type OutgoingMessage struct {
	Content string
	Poll    *Poll
	Files   []File
}

// Directory exposes the client's known guilds and channels.
type Directory interface {
	Guilds() []Guild
	Channels(guildID string) []Channel
}

// Sender performs outbound chat operations.
type Sender interface {
	Send(ctx context.Context, channelID string, msg OutgoingMessage) (MessageRef, error)
	Pin(ctx context.Context, ref MessageRef) error
	Reply(ctx context.Context, to *Message, text string) error
}

type Adapter interface {
	Directory
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Ready is closed once the client's local state (guild cache) is populated.
	Ready() <-chan struct{}
}
