package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"forumsync/internal/events"
	"forumsync/internal/models"
	"forumsync/internal/utils"

	"github.com/golang/glog"
	"gorm.io/gorm"
)

const (
	SortByVotes = "votes"
	SortByDate  = "date"

	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ListPostsQuery struct {
	Search string
	SortBy string
	Page   int
	Limit  int
}

type PostPage struct {
	Posts []models.Post
	Page  int
	Limit int
	Total int64
	Pages int
}

// ForumService applies post and reply mutations and announces each one
// through the injected Broadcaster once it has been persisted.
type ForumService struct {
	db    *gorm.DB
	bus   Broadcaster
	pages *utils.Cache[PostPage]

	// gen 每次变更加一；查询期间有变更则结果不写缓存
	pagesMu sync.Mutex
	gen     uint64
}

func NewForumService(db *gorm.DB, bus Broadcaster, pages *utils.Cache[PostPage]) *ForumService {
	if bus == nil {
		bus = NopBroadcaster{}
	}
	return &ForumService{db: db, bus: bus, pages: pages}
}

func (s *ForumService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if err := check(&in); err != nil {
		return nil, err
	}
	in.normalize()

	post := models.Post{
		Title:   in.Title,
		Content: in.Content,
		Author:  in.Author,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, translate(err, "create post")
	}

	glog.V(1).Infof("[forum] post %s created by %s", post.ID, post.Author)
	s.changed(events.PostCreated{Post: post})
	return &post, nil
}

func (s *ForumService) ListPosts(ctx context.Context, q ListPostsQuery) (*PostPage, error) {
	q, err := normalizeQuery(q)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("posts:%s:%d:%d:%s", q.SortBy, q.Page, q.Limit, models.FoldCase(q.Search))
	if s.pages != nil {
		if cached, ok := s.pages.Get(cacheKey); ok {
			cached.Posts = slices.Clone(cached.Posts)
			return &cached, nil
		}
	}

	gen := s.generation()
	query := s.db.WithContext(ctx).Model(&models.Post{})
	if q.Search != "" {
		pattern := "%" + escapeLike(models.FoldCase(q.Search)) + "%"
		query = query.Where("search_text LIKE ? ESCAPE '\\'", pattern)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, translate(err, "count posts")
	}

	order := "created_at DESC, id DESC"
	if q.SortBy == SortByVotes {
		order = "votes DESC, created_at DESC, id DESC"
	}

	posts := make([]models.Post, 0, q.Limit)
	if err := query.Omit("search_text").Order(order).
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&posts).Error; err != nil {
		return nil, translate(err, "list posts")
	}

	page := PostPage{
		Posts: posts,
		Page:  q.Page,
		Limit: q.Limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(q.Limit))),
	}
	s.remember(gen, cacheKey, page)
	page.Posts = slices.Clone(posts)
	return &page, nil
}

func (s *ForumService) GetPostDetail(ctx context.Context, postID string) (*models.PostDetail, error) {
	post, err := s.findPost(ctx, s.db, postID)
	if err != nil {
		return nil, err
	}

	replies := make([]models.Reply, 0, post.ReplyCount)
	if err := s.db.WithContext(ctx).
		Where("post_id = ?", post.ID).
		Order("created_at ASC, id ASC").
		Find(&replies).Error; err != nil {
		return nil, translate(err, "load replies")
	}

	post.ContentHTML = utils.RenderMarkdown(post.Content)
	for i := range replies {
		replies[i].ContentHTML = utils.RenderMarkdown(replies[i].Content)
	}

	return &models.PostDetail{Post: *post, Replies: replies}, nil
}

// AddReply stores the reply and rewrites the post's reply list and count in
// one transaction, so the two can never disagree.
func (s *ForumService) AddReply(ctx context.Context, postID string, in AddReplyInput) (*models.Reply, error) {
	if err := check(&in); err != nil {
		return nil, err
	}
	in.normalize()
	if !models.ValidID(postID) {
		return nil, ErrPostNotFound
	}

	var reply models.Reply
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.findPost(ctx, tx, postID)
		if err != nil {
			return err
		}

		reply = models.Reply{
			PostID:  post.ID,
			Content: in.Content,
			Author:  in.Author,
		}
		if err := tx.Create(&reply).Error; err != nil {
			return err
		}

		// 重新统计而不是 +1，避免计数漂移
		var ids []string
		if err := tx.Model(&models.Reply{}).
			Where("post_id = ?", post.ID).
			Order("created_at ASC, id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		post.ReplyIDs = ids
		post.ReplyCount = len(ids)

		return tx.Model(post).Select("reply_ids", "reply_count").Updates(post).Error
	})
	if err != nil {
		return nil, translate(err, "add reply")
	}

	glog.V(1).Infof("[forum] reply %s added to post %s", reply.ID, postID)
	s.changed(events.ReplyCreated{Post: postID, Reply: reply})
	return &reply, nil
}

func (s *ForumService) UpvotePost(ctx context.Context, postID string) (*models.Post, error) {
	if !models.ValidID(postID) {
		return nil, ErrPostNotFound
	}

	res := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		Update("votes", gorm.Expr("votes + ?", 1))
	if res.Error != nil {
		return nil, translate(res.Error, "upvote post")
	}
	if res.RowsAffected == 0 {
		return nil, ErrPostNotFound
	}

	post, err := s.findPost(ctx, s.db, postID)
	if err != nil {
		return nil, err
	}
	s.changed(events.PostChanged{Post: *post})
	return post, nil
}

// SetAnswered sets the flag, or flips it when in.Answered is nil.
func (s *ForumService) SetAnswered(ctx context.Context, postID string, in SetAnsweredInput) (*models.Post, error) {
	if !models.ValidID(postID) {
		return nil, ErrPostNotFound
	}

	var value any = gorm.Expr("NOT answered")
	if in.Answered != nil {
		value = *in.Answered
	}

	res := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ?", postID).
		Update("answered", value)
	if res.Error != nil {
		return nil, translate(res.Error, "set answered")
	}

	post, err := s.findPost(ctx, s.db, postID)
	if err != nil {
		return nil, err
	}
	s.changed(events.PostChanged{Post: *post})
	return post, nil
}

// DeletePost removes the post together with all of its replies.
func (s *ForumService) DeletePost(ctx context.Context, postID string) error {
	if !models.ValidID(postID) {
		return ErrPostNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post, err := s.findPost(ctx, tx, postID)
		if err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Reply{}).Error; err != nil {
			return err
		}
		return tx.Delete(post).Error
	})
	if err != nil {
		return translate(err, "delete post")
	}

	glog.V(1).Infof("[forum] post %s deleted", postID)
	s.changed(events.PostDeleted{Post: postID})
	return nil
}

func (s *ForumService) findPost(ctx context.Context, conn *gorm.DB, postID string) (*models.Post, error) {
	if !models.ValidID(postID) {
		return nil, ErrPostNotFound
	}
	var post models.Post
	if err := conn.WithContext(ctx).Where("id = ?", postID).First(&post).Error; err != nil {
		return nil, translate(err, "find post")
	}
	return &post, nil
}

// changed drops cached list pages and publishes e.
func (s *ForumService) changed(e events.Event) {
	if s.pages != nil {
		s.pagesMu.Lock()
		s.gen++
		s.pages.Purge()
		s.pagesMu.Unlock()
	}
	s.bus.Publish(e)
}

func (s *ForumService) generation() uint64 {
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	return s.gen
}

// remember caches page unless a mutation landed after gen was read.
func (s *ForumService) remember(gen uint64, key string, page PostPage) {
	if s.pages == nil {
		return
	}
	s.pagesMu.Lock()
	defer s.pagesMu.Unlock()
	if s.gen != gen {
		glog.V(2).Infof("[forum] list %s overlapped a change, not cached", key)
		return
	}
	s.pages.Set(key, page)
}

func normalizeQuery(q ListPostsQuery) (ListPostsQuery, error) {
	q.Search = strings.TrimSpace(q.Search)
	switch q.SortBy {
	case "":
		q.SortBy = SortByVotes
	case SortByVotes, SortByDate:
	default:
		return q, &ValidationError{Problems: []string{"sortBy must be one of: votes, date"}}
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
