package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"forumsync/internal/events"
	"forumsync/internal/models"
	"forumsync/internal/services"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const reconnectInterval = time.Second

// Sync keeps a Store current: it fetches over REST, follows the event stream,
// and re-fetches whenever it (re)connects or notices a missed event.
type Sync struct {
	API     *Client
	Store   *Store
	Notices *Notices

	Query    ListOptions
	Username string // join 时广播的名字，空则不发 join

	// OnChange is called after every store update.
	OnChange func()
	// OnSignal receives presence frames (userJoined, userTyping).
	OnSignal func(events.Message)

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewSync(api *Client) *Sync {
	return &Sync{
		API:     api,
		Store:   NewStore(),
		Notices: NewNotices(DefaultNoticeTTL),
	}
}

// Refresh re-fetches the list and, if a post is open, its detail.
func (s *Sync) Refresh(ctx context.Context) error {
	posts, _, err := s.API.ListPosts(ctx, s.Query)
	if err != nil {
		return s.fail("Failed to load posts", err)
	}
	s.Store.ReplacePosts(posts)

	if id := s.Store.SelectedID(); id != "" {
		detail, err := s.API.GetPost(ctx, id)
		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Status == 404:
			s.Store.ReplaceSelected(nil)
		case err != nil:
			return s.fail("Failed to load post", err)
		default:
			s.Store.ReplaceSelected(detail)
		}
	}
	s.Store.MarkFresh()
	s.changed()
	return nil
}

// Open fetches a post's detail and makes it the selected post.
func (s *Sync) Open(ctx context.Context, id string) error {
	detail, err := s.API.GetPost(ctx, id)
	if err != nil {
		return s.fail("Failed to load post", err)
	}
	s.Store.ReplaceSelected(detail)
	s.changed()
	return nil
}

func (s *Sync) Close() {
	s.Store.ReplaceSelected(nil)
	s.changed()
}

// Run follows the event stream until ctx is done, redialling every second
// after a disconnect.
func (s *Sync) Run(ctx context.Context) {
	t := time.NewTicker(reconnectInterval)
	defer t.Stop()
	for {
		if err := s.connectAndFollow(ctx); err != nil && ctx.Err() == nil {
			glog.Warningf("[sync] stream: %v", err)
		}
		select {
		case <-t.C:
		case <-ctx.Done():
			glog.V(1).Info("[sync] stopping")
			return
		}
	}
}

func (s *Sync) connectAndFollow(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.API.StreamURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial: %w", err)
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	glog.Info("[sync] connected")
	s.Store.ResetSeq()
	if s.Username != "" {
		if err := s.signal(events.KindJoin, events.JoinData{Username: s.Username}); err != nil {
			return err
		}
	}
	// 连接前后可能漏掉事件，重连后一律全量拉取
	_ = s.Refresh(ctx)

	for {
		var msg events.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read: %w", err)
		}
		s.handle(ctx, msg)
	}
}

func (s *Sync) handle(ctx context.Context, msg events.Message) {
	if !events.IsChange(msg.Type) {
		if s.OnSignal != nil {
			s.OnSignal(msg)
		}
		if msg.Type == events.KindUserJoined {
			var data events.UserJoinedData
			if json.Unmarshal(msg.Data, &data) == nil && data.Message != "" {
				s.Notices.Info(data.Message)
			}
		}
		return
	}

	e, err := events.Decode(msg)
	if err != nil {
		glog.Warningf("[sync] %v", err)
		s.Notices.Error("Failed to parse update")
		return
	}
	gap := s.Store.Observe(msg.Seq)
	s.Store.Apply(e)
	switch e.(type) {
	case events.PostCreated:
		s.Notices.Info("New post added!")
	case events.ReplyCreated:
		s.Notices.Info("New reply added!")
	case events.PostDeleted:
		s.Notices.Info("Post deleted")
	}
	s.changed()

	if gap {
		glog.Infof("[sync] missed events before #%d, refreshing", msg.Seq)
		_ = s.Refresh(ctx)
	}
}

// Typing announces that Username is writing a reply to postID.
func (s *Sync) Typing(postID string) error {
	return s.signal(events.KindTyping, events.TypingData{PostID: postID, Username: s.Username})
}

func (s *Sync) signal(kind events.Kind, data any) error {
	frame, err := events.EncodeSignal(kind, data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return errors.New("not connected")
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Mutations. State is only changed by the resulting events; a failure leaves
// the store as it was and posts a notice.

func (s *Sync) CreatePost(ctx context.Context, in services.CreatePostInput) (*models.Post, error) {
	post, err := s.API.CreatePost(ctx, in)
	if err != nil {
		return nil, s.fail("Failed to create post", err)
	}
	return post, nil
}

func (s *Sync) Reply(ctx context.Context, postID string, in services.AddReplyInput) (*models.Reply, error) {
	reply, err := s.API.AddReply(ctx, postID, in)
	if err != nil {
		return nil, s.fail("Failed to add reply", err)
	}
	return reply, nil
}

func (s *Sync) Upvote(ctx context.Context, postID string) error {
	if _, err := s.API.Upvote(ctx, postID); err != nil {
		return s.fail("Failed to upvote", err)
	}
	return nil
}

func (s *Sync) ToggleAnswered(ctx context.Context, postID string) error {
	if _, err := s.API.SetAnswered(ctx, postID, nil); err != nil {
		return s.fail("Failed to update post", err)
	}
	return nil
}

func (s *Sync) Delete(ctx context.Context, postID string) error {
	if err := s.API.DeletePost(ctx, postID); err != nil {
		return s.fail("Failed to delete post", err)
	}
	return nil
}

func (s *Sync) fail(prefix string, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		s.Notices.Error(prefix + ": " + apiErr.Message)
	} else {
		s.Notices.Error(prefix)
	}
	glog.Warningf("[sync] %s: %v", prefix, err)
	return err
}

func (s *Sync) changed() {
	if s.OnChange != nil {
		s.OnChange()
	}
}
