package client

import (
	"slices"
	"sync"

	"forumsync/internal/events"
	"forumsync/internal/models"
)

type Stats struct {
	Total    int
	Answered int
	Pending  int
}

// Store is the client's view of the forum: the post list as last fetched and
// the post currently open, kept current by applying change events.
//
// Events never re-sort posts; only a fresh list fetch changes the order.
type Store struct {
	mu       sync.Mutex
	posts    []models.Post
	selected *models.PostDetail

	lastSeq uint64
	stale   bool
}

func NewStore() *Store {
	return &Store{}
}

// ReplacePosts installs a freshly fetched list.
func (s *Store) ReplacePosts(posts []models.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = clonePosts(posts)
}

// ReplaceSelected installs a freshly fetched detail; nil clears it.
func (s *Store) ReplaceSelected(detail *models.PostDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if detail == nil {
		s.selected = nil
		return
	}
	s.selected = cloneDetail(detail)
}

func (s *Store) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePosts(s.posts)
}

func (s *Store) Selected() *models.PostDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	return cloneDetail(s.selected)
}

// SelectedID returns the id of the open post, or "".
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return ""
	}
	return s.selected.ID
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Total: len(s.posts)}
	for _, p := range s.posts {
		if p.Answered {
			st.Answered++
		}
	}
	st.Pending = st.Total - st.Answered
	return st
}

// Apply folds one change event into the store.
func (s *Store) Apply(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := e.(type) {
	case events.PostCreated:
		if s.indexOf(e.Post.ID) >= 0 {
			return
		}
		s.posts = append([]models.Post{clonePost(e.Post)}, s.posts...)

	case events.ReplyCreated:
		if i := s.indexOf(e.Post); i >= 0 {
			s.posts[i].ReplyCount++
		}
		if s.selected == nil || s.selected.ID != e.Post {
			return
		}
		if slices.ContainsFunc(s.selected.Replies, func(r models.Reply) bool { return r.ID == e.Reply.ID }) {
			return
		}
		s.selected.Replies = append(s.selected.Replies, e.Reply)
		if !slices.Contains(s.selected.ReplyIDs, e.Reply.ID) {
			s.selected.ReplyIDs = append(s.selected.ReplyIDs, e.Reply.ID)
		}
		s.selected.ReplyCount++

	case events.PostChanged:
		if i := s.indexOf(e.Post.ID); i >= 0 {
			s.posts[i] = clonePost(e.Post)
		}
		if s.selected == nil || s.selected.ID != e.Post.ID {
			return
		}
		// 帖子整体替换，已解析的回复只保留仍在列表里的
		keep := make([]models.Reply, 0, len(s.selected.Replies))
		for _, r := range s.selected.Replies {
			if slices.Contains(e.Post.ReplyIDs, r.ID) {
				keep = append(keep, r)
			}
		}
		post := clonePost(e.Post)
		if post.ContentHTML == "" && post.Content == s.selected.Content {
			post.ContentHTML = s.selected.ContentHTML
		}
		s.selected = &models.PostDetail{Post: post, Replies: keep}

	case events.PostDeleted:
		if i := s.indexOf(e.Post); i >= 0 {
			s.posts = slices.Delete(s.posts, i, i+1)
		}
		if s.selected != nil && s.selected.ID == e.Post {
			s.selected = nil
		}
	}
}

// Observe records the sequence number of a received change event and reports
// whether one or more events were missed before it. The store stays stale
// until MarkFresh.
func (s *Store) Observe(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gap := s.lastSeq != 0 && seq != s.lastSeq+1
	s.lastSeq = seq
	if gap {
		s.stale = true
	}
	return gap
}

// ResetSeq forgets the last sequence number, for a new connection.
func (s *Store) ResetSeq() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeq = 0
}

func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

func (s *Store) MarkFresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = false
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.posts, func(p models.Post) bool { return p.ID == id })
}

func clonePost(p models.Post) models.Post {
	p.ReplyIDs = slices.Clone(p.ReplyIDs)
	return p
}

func clonePosts(posts []models.Post) []models.Post {
	out := make([]models.Post, len(posts))
	for i, p := range posts {
		out[i] = clonePost(p)
	}
	return out
}

func cloneDetail(d *models.PostDetail) *models.PostDetail {
	return &models.PostDetail{
		Post:    clonePost(d.Post),
		Replies: slices.Clone(d.Replies),
	}
}
