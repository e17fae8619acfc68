package models

import (
	"time"

	"gorm.io/gorm"
)

type Reply struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	PostID    string    `gorm:"size:26;not null;index:idx_reply_post_created,priority:1" json:"postId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Author    string    `gorm:"size:100;not null;default:Anonymous" json:"author"`
	CreatedAt time.Time `gorm:"index:idx_reply_post_created,priority:2" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ContentHTML string `gorm:"-" json:"contentHtml,omitempty"`
}

func (r *Reply) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	r.Author = AuthorOrDefault(r.Author)
	return nil
}
