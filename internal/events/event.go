// Package events defines the change notifications broadcast after every
// successful forum mutation and their websocket wire format.
package events

import (
	"encoding/json"
	"fmt"

	"forumsync/internal/models"
)

type Kind string

// Change events, server → client.
const (
	KindPostCreated  Kind = "newPost"
	KindReplyCreated Kind = "newReply"
	KindPostChanged  Kind = "postUpdated"
	KindPostDeleted  Kind = "postDeleted"
)

// Presence signals. Join and Typing arrive from clients; UserJoined and
// UserTyping are relayed to every other session.
const (
	KindJoin       Kind = "join"
	KindTyping     Kind = "typing"
	KindUserJoined Kind = "userJoined"
	KindUserTyping Kind = "userTyping"
)

// Event is exactly one of PostCreated, ReplyCreated, PostChanged or PostDeleted.
type Event interface {
	Kind() Kind
	// PostID is the post the event is about.
	PostID() string
	payload() any
}

type PostCreated struct {
	Post models.Post
}

type ReplyCreated struct {
	Post  string       `json:"postId"`
	Reply models.Reply `json:"reply"`
}

// PostChanged carries the full post after a vote or answered change.
type PostChanged struct {
	Post models.Post
}

type PostDeleted struct {
	Post string `json:"postId"`
}

func (e PostCreated) Kind() Kind     { return KindPostCreated }
func (e PostCreated) PostID() string { return e.Post.ID }
func (e PostCreated) payload() any   { return e.Post }

func (e ReplyCreated) Kind() Kind     { return KindReplyCreated }
func (e ReplyCreated) PostID() string { return e.Post }
func (e ReplyCreated) payload() any   { return e }

func (e PostChanged) Kind() Kind     { return KindPostChanged }
func (e PostChanged) PostID() string { return e.Post.ID }
func (e PostChanged) payload() any   { return e.Post }

func (e PostDeleted) Kind() Kind     { return KindPostDeleted }
func (e PostDeleted) PostID() string { return e.Post }
func (e PostDeleted) payload() any   { return e }

// Message is one websocket frame. Seq is set on change events only and grows
// by one per published event.
type Message struct {
	Type Kind            `json:"type"`
	Seq  uint64          `json:"seq,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinData struct {
	Username string `json:"username"`
}

type TypingData struct {
	PostID   string `json:"postId"`
	Username string `json:"username"`
}

type UserJoinedData struct {
	Message string `json:"message"`
}

// Encode wraps a change event in its wire frame.
func Encode(e Event, seq uint64) ([]byte, error) {
	data, err := json.Marshal(e.payload())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
	}
	return json.Marshal(Message{Type: e.Kind(), Seq: seq, Data: data})
}

// EncodeSignal builds a presence frame.
func EncodeSignal(kind Kind, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return json.Marshal(Message{Type: kind, Data: raw})
}

// IsChange reports whether kind names a change event.
func IsChange(kind Kind) bool {
	switch kind {
	case KindPostCreated, KindReplyCreated, KindPostChanged, KindPostDeleted:
		return true
	}
	return false
}

// Decode turns a change frame back into its Event.
func Decode(msg Message) (Event, error) {
	switch msg.Type {
	case KindPostCreated:
		var post models.Post
		if err := json.Unmarshal(msg.Data, &post); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return PostCreated{Post: post}, nil
	case KindReplyCreated:
		var e ReplyCreated
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return e, nil
	case KindPostChanged:
		var post models.Post
		if err := json.Unmarshal(msg.Data, &post); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return PostChanged{Post: post}, nil
	case KindPostDeleted:
		var e PostDeleted
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("not a change event: %q", msg.Type)
}
