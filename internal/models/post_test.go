package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestNewIDIsValidAndOrdered(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.Equal(t, ValidID(a), true)
	assert.Equal(t, ValidID(b), true)
	assert.Equal(t, a < b, true)
	assert.Equal(t, ValidID("not-an-id"), false)
	assert.Equal(t, ValidID(""), false)
}

func TestAuthorOrDefault(t *testing.T) {
	assert.Equal(t, AuthorOrDefault(""), DefaultAuthor)
	assert.Equal(t, AuthorOrDefault("   "), DefaultAuthor)
	assert.Equal(t, AuthorOrDefault(" ada "), "ada")
}

func TestPostDetailRepliesShadowReplyIDs(t *testing.T) {
	detail := PostDetail{
		Post:    Post{ID: "p1", ReplyIDs: []string{"r1"}, ReplyCount: 1},
		Replies: []Reply{{ID: "r1", PostID: "p1", Content: "Nice post!"}},
	}
	raw, err := json.Marshal(detail)
	assert.Equal(t, err, nil)
	// 详情里的 replies 是完整对象而不是 id 列表
	assert.Equal(t, strings.Contains(string(raw), `"replies":[{"id":"r1"`), true)
	assert.Equal(t, strings.Contains(string(raw), `"replyCount":1`), true)
}
