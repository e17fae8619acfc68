package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forumsync/internal/db"
	"forumsync/internal/events"
	"forumsync/internal/models"
	"forumsync/internal/utils"

	"github.com/go-playground/assert/v2"
	"gorm.io/gorm"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind()
	}
	return kinds
}

func (r *recorder) last() events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func newTestService(t *testing.T) (*ForumService, *recorder, *gorm.DB) {
	t.Helper()
	conn, err := db.Open(db.Options{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	pages, err := utils.NewCache[PostPage](16, time.Minute)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	rec := &recorder{}
	return NewForumService(conn, rec, pages), rec, conn
}

func mustCreate(t *testing.T, s *ForumService, title string) *models.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), CreatePostInput{
		Title:   title,
		Content: "This needs ten chars.",
	})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return post
}

func TestCreatePostDefaults(t *testing.T) {
	s, rec, _ := newTestService(t)

	a := mustCreate(t, s, "Intro to X")
	b := mustCreate(t, s, "Intro to Y")

	assert.Equal(t, a.Votes, 0)
	assert.Equal(t, a.Answered, false)
	assert.Equal(t, a.ReplyCount, 0)
	assert.Equal(t, len(a.ReplyIDs), 0)
	assert.Equal(t, a.Author, models.DefaultAuthor)
	assert.Equal(t, models.ValidID(a.ID), true)
	assert.NotEqual(t, a.ID, b.ID)

	assert.Equal(t, rec.kinds(), []events.Kind{events.KindPostCreated, events.KindPostCreated})
	assert.Equal(t, rec.last().PostID(), b.ID)
}

func TestCreatePostValidationListsEveryProblem(t *testing.T) {
	s, rec, _ := newTestService(t)

	_, err := s.CreatePost(context.Background(), CreatePostInput{Title: "   ", Content: "short"})
	var ve *ValidationError
	assert.Equal(t, errors.As(err, &ve), true)
	assert.Equal(t, ve.Problems, []string{"Title is required", "Content must be at least 10 characters"})

	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	_, err = s.CreatePost(context.Background(), CreatePostInput{Title: string(long)})
	assert.Equal(t, errors.As(err, &ve), true)
	assert.Equal(t, ve.Problems, []string{"Title cannot exceed 255 characters", "Content is required"})

	// nothing persisted, nothing announced
	assert.Equal(t, len(rec.kinds()), 0)
	page, err := s.ListPosts(context.Background(), ListPostsQuery{})
	assert.Equal(t, err, nil)
	assert.Equal(t, page.Total, int64(0))
}

func TestListPostsSortSearchAndPaginate(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	older := mustCreate(t, s, "Intro to Go")
	newer := mustCreate(t, s, "Channels deep dive")
	for i := 0; i < 3; i++ {
		_, err := s.UpvotePost(ctx, older.ID)
		assert.Equal(t, err, nil)
	}

	byVotes, err := s.ListPosts(ctx, ListPostsQuery{SortBy: SortByVotes})
	assert.Equal(t, err, nil)
	assert.Equal(t, []string{byVotes.Posts[0].ID, byVotes.Posts[1].ID}, []string{older.ID, newer.ID})
	assert.Equal(t, byVotes.Posts[0].Votes, 3)

	byDate, err := s.ListPosts(ctx, ListPostsQuery{SortBy: SortByDate})
	assert.Equal(t, err, nil)
	assert.Equal(t, []string{byDate.Posts[0].ID, byDate.Posts[1].ID}, []string{newer.ID, older.ID})

	found, err := s.ListPosts(ctx, ListPostsQuery{Search: "INTRO"})
	assert.Equal(t, err, nil)
	assert.Equal(t, found.Total, int64(1))
	assert.Equal(t, found.Posts[0].ID, older.ID)

	// LIKE 通配符按字面匹配
	none, err := s.ListPosts(ctx, ListPostsQuery{Search: "%"})
	assert.Equal(t, err, nil)
	assert.Equal(t, none.Total, int64(0))

	// 非 ASCII 字母也不区分大小写
	elan := mustCreate(t, s, "Élan vital")
	for _, term := range []string{"élan", "ÉLAN", "Vital"} {
		hit, err := s.ListPosts(ctx, ListPostsQuery{Search: term})
		assert.Equal(t, err, nil)
		assert.Equal(t, hit.Total, int64(1))
		assert.Equal(t, hit.Posts[0].ID, elan.ID)
	}

	// 不跨标题和正文的边界匹配
	across, err := s.ListPosts(ctx, ListPostsQuery{Search: "vitalthis"})
	assert.Equal(t, err, nil)
	assert.Equal(t, across.Total, int64(0))

	for i := 0; i < 3; i++ {
		mustCreate(t, s, "Filler post")
	}
	paged, err := s.ListPosts(ctx, ListPostsQuery{SortBy: SortByDate, Page: 3, Limit: 2})
	assert.Equal(t, err, nil)
	assert.Equal(t, paged.Total, int64(6))
	assert.Equal(t, paged.Pages, 3)
	assert.Equal(t, len(paged.Posts), 2)
	assert.Equal(t, paged.Posts[0].ID, newer.ID)
	assert.Equal(t, paged.Posts[1].ID, older.ID)

	_, err = s.ListPosts(ctx, ListPostsQuery{SortBy: "hot"})
	var ve *ValidationError
	assert.Equal(t, errors.As(err, &ve), true)
}

func TestListPostsCacheIsPurgedByMutations(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := s.ListPosts(ctx, ListPostsQuery{})
	assert.Equal(t, err, nil)
	assert.Equal(t, first.Total, int64(0))

	post := mustCreate(t, s, "Fresh post")
	second, err := s.ListPosts(ctx, ListPostsQuery{})
	assert.Equal(t, err, nil)
	assert.Equal(t, second.Total, int64(1))

	_, err = s.UpvotePost(ctx, post.ID)
	assert.Equal(t, err, nil)
	third, err := s.ListPosts(ctx, ListPostsQuery{})
	assert.Equal(t, err, nil)
	assert.Equal(t, third.Posts[0].Votes, 1)
}

func TestListPostsSkipsCacheWhenMutationOverlaps(t *testing.T) {
	s, _, conn := newTestService(t)
	ctx := context.Background()

	// 第一次列表查询读完数据后停住，等帖子创建完再继续
	reached := make(chan struct{})
	release := make(chan struct{})
	var hold sync.Once
	err := conn.Callback().Query().After("gorm:query").Register("test:hold_list", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*[]models.Post); !ok {
			return
		}
		hold.Do(func() {
			close(reached)
			<-release
		})
	})
	assert.Equal(t, err, nil)

	type result struct {
		page *PostPage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		page, err := s.ListPosts(ctx, ListPostsQuery{})
		done <- result{page, err}
	}()

	<-reached
	post := mustCreate(t, s, "Landed mid-query")
	close(release)

	overlapped := <-done
	assert.Equal(t, overlapped.err, nil)
	assert.Equal(t, overlapped.page.Total, int64(0))

	next, err := s.ListPosts(ctx, ListPostsQuery{})
	assert.Equal(t, err, nil)
	assert.Equal(t, next.Total, int64(1))
	assert.Equal(t, next.Posts[0].ID, post.ID)
}

func TestContentLengthCountsSurroundingWhitespace(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()

	post, err := s.CreatePost(ctx, CreatePostInput{Title: "  Padded  ", Content: "   hi there   "})
	assert.Equal(t, err, nil)
	assert.Equal(t, post.Title, "Padded")
	assert.Equal(t, post.Content, "hi there")

	stored, err := s.GetPostDetail(ctx, post.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, stored.Content, "hi there")

	_, err = s.CreatePost(ctx, CreatePostInput{Title: "Blank body", Content: "            "})
	var ve *ValidationError
	assert.Equal(t, errors.As(err, &ve), true)
	assert.Equal(t, ve.Problems, []string{"Content is required"})

	reply, err := s.AddReply(ctx, post.ID, AddReplyInput{Content: "  hey  "})
	assert.Equal(t, err, nil)
	assert.Equal(t, reply.Content, "hey")

	_, err = s.AddReply(ctx, post.ID, AddReplyInput{Content: "       "})
	assert.Equal(t, errors.As(err, &ve), true)
	assert.Equal(t, ve.Problems, []string{"Reply content is required"})
}

func TestAddReplyKeepsCountInSync(t *testing.T) {
	s, rec, _ := newTestService(t)
	ctx := context.Background()
	post := mustCreate(t, s, "Intro to X")

	var ids []string
	for i := 0; i < 4; i++ {
		reply, err := s.AddReply(ctx, post.ID, AddReplyInput{Content: "Nice post!"})
		assert.Equal(t, err, nil)
		assert.Equal(t, reply.PostID, post.ID)
		assert.Equal(t, reply.Author, models.DefaultAuthor)
		ids = append(ids, reply.ID)

		e, ok := rec.last().(events.ReplyCreated)
		assert.Equal(t, ok, true)
		assert.Equal(t, e.Post, post.ID)
		assert.Equal(t, e.Reply.ID, reply.ID)
	}

	detail, err := s.GetPostDetail(ctx, post.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, detail.ReplyCount, 4)
	assert.Equal(t, detail.ReplyIDs, ids)
	assert.Equal(t, len(detail.Replies), 4)
	for i, r := range detail.Replies {
		assert.Equal(t, r.ID, ids[i])
		if i > 0 {
			assert.Equal(t, r.CreatedAt.Before(detail.Replies[i-1].CreatedAt), false)
		}
	}
	assert.Equal(t, detail.ContentHTML, "<p>This needs ten chars.</p>")
}

func TestAddReplyFailures(t *testing.T) {
	s, rec, _ := newTestService(t)
	ctx := context.Background()
	post := mustCreate(t, s, "Intro to X")
	before := len(rec.kinds())

	_, err := s.AddReply(ctx, post.ID, AddReplyInput{Content: "hey"})
	var ve *ValidationError
	assert.Equal(t, errors.As(err, &ve), true)
	assert.Equal(t, ve.Problems, []string{"Reply must be at least 5 characters"})

	_, err = s.AddReply(ctx, post.ID, AddReplyInput{Content: "  "})
	assert.Equal(t, errors.As(err, &ve), true)
	assert.Equal(t, ve.Problems, []string{"Reply content is required"})

	_, err = s.AddReply(ctx, models.NewID(), AddReplyInput{Content: "Nice post!"})
	assert.Equal(t, errors.Is(err, ErrPostNotFound), true)

	assert.Equal(t, len(rec.kinds()), before)
}

func TestUpvoteIsMonotonic(t *testing.T) {
	s, rec, _ := newTestService(t)
	ctx := context.Background()
	post := mustCreate(t, s, "Intro to X")

	const k = 7
	for i := 1; i <= k; i++ {
		updated, err := s.UpvotePost(ctx, post.ID)
		assert.Equal(t, err, nil)
		assert.Equal(t, updated.Votes, i)
	}
	e, ok := rec.last().(events.PostChanged)
	assert.Equal(t, ok, true)
	assert.Equal(t, e.Post.Votes, k)

	_, err := s.UpvotePost(ctx, "bad-id")
	assert.Equal(t, errors.Is(err, ErrPostNotFound), true)
	_, err = s.UpvotePost(ctx, models.NewID())
	assert.Equal(t, errors.Is(err, ErrPostNotFound), true)
}

func TestSetAnsweredTogglesOrSets(t *testing.T) {
	s, rec, _ := newTestService(t)
	ctx := context.Background()
	post := mustCreate(t, s, "Intro to X")
	yes := true

	p, err := s.SetAnswered(ctx, post.ID, SetAnsweredInput{})
	assert.Equal(t, err, nil)
	assert.Equal(t, p.Answered, true)

	p, err = s.SetAnswered(ctx, post.ID, SetAnsweredInput{})
	assert.Equal(t, err, nil)
	assert.Equal(t, p.Answered, false)

	p, err = s.SetAnswered(ctx, post.ID, SetAnsweredInput{Answered: &yes})
	assert.Equal(t, err, nil)
	assert.Equal(t, p.Answered, true)

	p, err = s.SetAnswered(ctx, post.ID, SetAnsweredInput{Answered: &yes})
	assert.Equal(t, err, nil)
	assert.Equal(t, p.Answered, true)

	e, ok := rec.last().(events.PostChanged)
	assert.Equal(t, ok, true)
	assert.Equal(t, e.Post.Answered, true)

	_, err = s.SetAnswered(ctx, models.NewID(), SetAnsweredInput{})
	assert.Equal(t, errors.Is(err, ErrPostNotFound), true)
}

func TestDeletePostCascades(t *testing.T) {
	s, rec, conn := newTestService(t)
	ctx := context.Background()
	post := mustCreate(t, s, "Intro to X")
	keep := mustCreate(t, s, "Another post")
	for i := 0; i < 3; i++ {
		_, err := s.AddReply(ctx, post.ID, AddReplyInput{Content: "Nice post!"})
		assert.Equal(t, err, nil)
	}
	_, err := s.AddReply(ctx, keep.ID, AddReplyInput{Content: "Stays around"})
	assert.Equal(t, err, nil)

	assert.Equal(t, s.DeletePost(ctx, post.ID), nil)
	e, ok := rec.last().(events.PostDeleted)
	assert.Equal(t, ok, true)
	assert.Equal(t, e.Post, post.ID)

	_, err = s.GetPostDetail(ctx, post.ID)
	assert.Equal(t, errors.Is(err, ErrPostNotFound), true)

	var orphans int64
	conn.Model(&models.Reply{}).Where("post_id = ?", post.ID).Count(&orphans)
	assert.Equal(t, orphans, int64(0))
	var kept int64
	conn.Model(&models.Reply{}).Where("post_id = ?", keep.ID).Count(&kept)
	assert.Equal(t, kept, int64(1))

	assert.Equal(t, errors.Is(s.DeletePost(ctx, post.ID), ErrPostNotFound), true)
}

func TestNopBroadcasterIsDefault(t *testing.T) {
	conn, err := db.Open(db.Options{Driver: "sqlite", DSN: ":memory:"})
	assert.Equal(t, err, nil)
	s := NewForumService(conn, nil, nil)
	post, err := s.CreatePost(context.Background(), CreatePostInput{Title: "Quiet", Content: "Nobody is listening."})
	assert.Equal(t, err, nil)
	page, err := s.ListPosts(context.Background(), ListPostsQuery{})
	assert.Equal(t, err, nil)
	assert.Equal(t, page.Posts[0].ID, post.ID)
}
