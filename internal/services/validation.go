package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// CreatePostInput is the command behind POST /posts.
type CreatePostInput struct {
	Title   string `json:"title" validate:"notblank,max=255"`
	Content string `json:"content" validate:"notblank,min=10"`
	Author  string `json:"author"`
}

// AddReplyInput is the command behind POST /posts/:id/reply.
type AddReplyInput struct {
	Content string `json:"content" validate:"notblank,min=5"`
	Author  string `json:"author"`
}

// SetAnsweredInput toggles when Answered is nil.
type SetAnsweredInput struct {
	Answered *bool `json:"answered"`
}

// 字段 + 规则 → 提示文案
var messages = map[string]map[string]string{
	"CreatePostInput.Title": {
		"notblank": "Title is required",
		"max":      "Title cannot exceed 255 characters",
	},
	"CreatePostInput.Content": {
		"notblank": "Content is required",
		"min":      "Content must be at least 10 characters",
	},
	"AddReplyInput.Content": {
		"notblank": "Reply content is required",
		"min":      "Reply must be at least 5 characters",
	},
}

// 空白内容算缺失；长度按原始输入计算，入库前再去空白
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

func (in *CreatePostInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Author = strings.TrimSpace(in.Author)
}

func (in *AddReplyInput) normalize() {
	in.Content = strings.TrimSpace(in.Content)
	in.Author = strings.TrimSpace(in.Author)
}

// check runs the struct rules and collects every failure, not just the first.
func check(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fe.StructNamespace()
		if msg, ok := messages[key][fe.Tag()]; ok {
			problems = append(problems, msg)
			continue
		}
		problems = append(problems, fe.Field()+" is invalid")
	}
	return &ValidationError{Problems: problems}
}
