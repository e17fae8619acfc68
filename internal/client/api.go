// Package client talks to the forum from the other side: a REST client, the
// event stream, and the in-memory Store that reconciles the two.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"forumsync/internal/models"
	"forumsync/internal/services"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

type ListOptions struct {
	Search string
	SortBy string
	Page   int
	Limit  int
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	Pagination *Pagination     `json:"pagination"`
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// New returns a client for the server at baseURL (e.g. http://localhost:5000).
func New(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: u, http: hc}, nil
}

// StreamURL is the websocket endpoint matching the REST base url.
func (c *Client) StreamURL() string {
	u := c.baseURL.JoinPath("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func (c *Client) ListPosts(ctx context.Context, opts ListOptions) ([]models.Post, Pagination, error) {
	q := url.Values{}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.SortBy != "" {
		q.Set("sortBy", opts.SortBy)
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}

	var posts []models.Post
	env, err := c.do(ctx, http.MethodGet, "api/posts", q, nil, &posts)
	if err != nil {
		return nil, Pagination{}, err
	}
	var page Pagination
	if env.Pagination != nil {
		page = *env.Pagination
	}
	return posts, page, nil
}

// GetPost fetches a post with its replies resolved.
func (c *Client) GetPost(ctx context.Context, id string) (*models.PostDetail, error) {
	// 详情里 replies 是对象数组，会盖住 Post.ReplyIDs，这里补回来
	var detail models.PostDetail
	if _, err := c.do(ctx, http.MethodGet, "api/posts/"+url.PathEscape(id), nil, nil, &detail); err != nil {
		return nil, err
	}
	detail.ReplyIDs = make([]string, len(detail.Replies))
	for i, r := range detail.Replies {
		detail.ReplyIDs[i] = r.ID
	}
	return &detail, nil
}

func (c *Client) CreatePost(ctx context.Context, in services.CreatePostInput) (*models.Post, error) {
	var post models.Post
	if _, err := c.do(ctx, http.MethodPost, "api/posts", nil, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) AddReply(ctx context.Context, postID string, in services.AddReplyInput) (*models.Reply, error) {
	var reply models.Reply
	if _, err := c.do(ctx, http.MethodPost, "api/posts/"+url.PathEscape(postID)+"/reply", nil, in, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) Upvote(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	if _, err := c.do(ctx, http.MethodPost, "api/posts/"+url.PathEscape(postID)+"/upvote", nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// SetAnswered sets the flag, or toggles it when answered is nil.
func (c *Client) SetAnswered(ctx context.Context, postID string, answered *bool) (*models.Post, error) {
	var post models.Post
	in := services.SetAnsweredInput{Answered: answered}
	if _, err := c.do(ctx, http.MethodPost, "api/posts/"+url.PathEscape(postID)+"/answered", nil, in, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	_, err := c.do(ctx, http.MethodDelete, "api/posts/"+url.PathEscape(postID), nil, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (*envelope, error) {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, fmt.Errorf("failed to decode %s %s: %w", method, u.Path, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("failed to decode %s %s: %w", method, u.Path, err)
		}
	}
	return &env, nil
}
