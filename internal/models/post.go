package models

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

const DefaultAuthor = "Anonymous"

type Post struct {
	ID         string    `gorm:"primaryKey;size:26" json:"id"`
	Title      string    `gorm:"size:255;not null" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Author     string    `gorm:"size:100;not null;default:Anonymous" json:"author"`
	Votes      int       `gorm:"not null;default:0;index:idx_post_votes_created,priority:1,sort:desc" json:"votes"`
	Answered   bool      `gorm:"not null;default:false" json:"answered"`
	ReplyIDs   []string  `gorm:"serializer:json;type:text" json:"replies"` // 按创建顺序
	ReplyCount int       `gorm:"not null;default:0" json:"replyCount"`
	CreatedAt  time.Time `gorm:"index:idx_post_votes_created,priority:2,sort:desc;index:idx_post_created,sort:desc" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// 标题 + 正文按 Go 规则转小写，搜索只比这一列
	SearchText string `gorm:"type:text" json:"-"`

	// 非数据库字段，详情页填充
	ContentHTML string `gorm:"-" json:"contentHtml,omitempty"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = NewID()
	}
	p.Author = AuthorOrDefault(p.Author)
	p.SearchText = SearchKey(p.Title, p.Content)
	if p.ReplyIDs == nil {
		p.ReplyIDs = []string{}
	}
	return nil
}

// PostDetail is a Post with its replies resolved, oldest first.
type PostDetail struct {
	Post
	Replies []Reply `json:"replies"`
}

// NewID returns a time-ordered identifier.
func NewID() string {
	return ulid.Make().String()
}

// ValidID reports whether id could have been produced by NewID.
func ValidID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

func AuthorOrDefault(author string) string {
	author = strings.TrimSpace(author)
	if author == "" {
		return DefaultAuthor
	}
	return author
}

// FoldCase lower-cases s with full Unicode rules, so stored text and search
// terms fold the same way whatever the database's LOWER does.
func FoldCase(s string) string {
	return strings.ToLower(s)
}

// SearchKey is the folded text a post is searched by. The separator keeps a
// term from matching across the title/content boundary.
func SearchKey(title, content string) string {
	return FoldCase(title) + "\x1f" + FoldCase(content)
}
