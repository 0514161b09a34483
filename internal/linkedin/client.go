// Package linkedin wraps the external social-network API: post and
// comment reads for the poller, and the outbound writes (reply, DM,
// invite, like) the executor performs.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
)

// Doer is the interface for performing HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	config *config.LinkedInConfig
	logger *zap.Logger
	client Doer
}

// Post is the snapshot of a monitored post.
type Post struct {
	URN          string `json:"urn"`
	Text         string `json:"text"`
	AuthorID     string `json:"author_id"`
	AuthorName   string `json:"author_name"`
	LikeCount    int    `json:"like_count"`
	CommentCount int    `json:"comment_count"`
}

// Comment is one comment on a post, as returned by the API.
type Comment struct {
	ID              string    `json:"id"`
	ActorID         string    `json:"actor_id"`
	ActorName       string    `json:"actor_name"`
	ActorHeadline   string    `json:"actor_headline"`
	ActorProfileURL string    `json:"actor_profile_url"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"created_at"`
}

// Profile is account/profile metadata for CRM sync.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Headline string `json:"headline"`
	URL      string `json:"url"`
}

func NewClient(cfg *config.LinkedInConfig, logger *zap.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NewClientWithDoer creates a Client with a custom transport (useful for
// testing).
func NewClientWithDoer(cfg *config.LinkedInConfig, logger *zap.Logger, doer Doer) *Client {
	return &Client{
		config: cfg,
		logger: logger,
		client: doer,
	}
}

// GetPost fetches the snapshot of a post. A 404 is wrapped into a
// user-facing NotFound: the post was deleted or made private.
func (c *Client) GetPost(ctx context.Context, postURN string) (*Post, error) {
	endpoint := fmt.Sprintf("%s/v2/posts/%s", c.config.BaseURL, url.PathEscape(postURN))

	var post Post
	if err := c.getJSON(ctx, endpoint, &post); err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewNotFound("post não encontrado ou privado: %s", postURN)
		}
		return nil, err
	}

	if post.URN == "" {
		post.URN = postURN
	}
	return &post, nil
}

type commentsResponse struct {
	Elements []struct {
		ID    string `json:"id"`
		Actor struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			Headline   string `json:"headline"`
			ProfileURL string `json:"profile_url"`
		} `json:"actor"`
		Message struct {
			Text string `json:"text"`
		} `json:"message"`
		CreatedAt int64 `json:"created_at"`
	} `json:"elements"`
	Paging struct {
		Start int `json:"start"`
		Count int `json:"count"`
		Total int `json:"total"`
	} `json:"paging"`
}

// ListComments fetches all comments on a post, oldest first, walking the
// paginated endpoint until exhausted. Transient 5xx responses are retried
// a couple of times with backoff; anything else fails the call.
func (c *Client) ListComments(ctx context.Context, postURN string) ([]Comment, error) {
	var all []Comment
	start := 0

	for {
		endpoint := fmt.Sprintf("%s/v2/socialActions/%s/comments?start=%d&count=%d&sort=CREATED_ASC",
			c.config.BaseURL, url.PathEscape(postURN), start, c.config.PageSize)

		var page commentsResponse
		backoff := retry.WithMaxRetries(2, retry.NewFibonacci(500*time.Millisecond))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			page = commentsResponse{}
			err := c.getJSON(ctx, endpoint, &page)
			if err != nil {
				var appErr *apperrors.Error
				if errors.As(err, &appErr) && appErr.Kind == apperrors.KindExternalAPI && appErr.StatusCode >= 500 {
					return retry.RetryableError(err)
				}
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list comments: %w", err)
		}

		for _, el := range page.Elements {
			all = append(all, Comment{
				ID:              el.ID,
				ActorID:         el.Actor.ID,
				ActorName:       el.Actor.Name,
				ActorHeadline:   el.Actor.Headline,
				ActorProfileURL: el.Actor.ProfileURL,
				Text:            el.Message.Text,
				CreatedAt:       time.UnixMilli(el.CreatedAt).UTC(),
			})
		}

		start += len(page.Elements)
		if len(page.Elements) == 0 || start >= page.Paging.Total {
			break
		}
	}

	return all, nil
}

// GetProfile fetches profile metadata for CRM sync.
func (c *Client) GetProfile(ctx context.Context, profileID string) (*Profile, error) {
	endpoint := fmt.Sprintf("%s/v2/people/%s", c.config.BaseURL, url.PathEscape(profileID))

	var profile Profile
	if err := c.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// PostReply publishes a public reply under a post.
func (c *Client) PostReply(ctx context.Context, postURN, text string) error {
	if err := ValidateCommentText(text); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v2/socialActions/%s/comments", c.config.BaseURL, url.PathEscape(postURN))
	body := map[string]any{
		"message": map[string]any{"text": text},
	}
	return c.postJSON(ctx, endpoint, body)
}

// SendMessage sends a private DM to a profile.
func (c *Client) SendMessage(ctx context.Context, profileID, text string) error {
	if err := ValidateCommentText(text); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v2/messages", c.config.BaseURL)
	body := map[string]any{
		"recipient": profileID,
		"body":      text,
	}
	return c.postJSON(ctx, endpoint, body)
}

// SendInvite sends a connection invite to a profile.
func (c *Client) SendInvite(ctx context.Context, profileID, note string) error {
	endpoint := fmt.Sprintf("%s/v2/invitations", c.config.BaseURL)
	body := map[string]any{
		"invitee": profileID,
	}
	if note != "" {
		body["message"] = note
	}
	return c.postJSON(ctx, endpoint, body)
}

// LikePost likes a post.
func (c *Client) LikePost(ctx context.Context, postURN string) error {
	endpoint := fmt.Sprintf("%s/v2/socialActions/%s/likes", c.config.BaseURL, url.PathEscape(postURN))
	return c.postJSON(ctx, endpoint, map[string]any{})
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewExternalAPI(0, "falha de rede na API do LinkedIn", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewExternalAPI(0, "falha de rede na API do LinkedIn", err)
	}
	defer resp.Body.Close()

	return c.checkStatus(resp)
}

func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NewNotFound("recurso não encontrado na API do LinkedIn")
	case http.StatusTooManyRequests:
		resetAt := time.Now().Add(time.Minute)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := time.ParseDuration(ra + "s"); err == nil {
				resetAt = time.Now().Add(secs)
			}
		}
		return apperrors.NewRateLimited("limite de requisições da API do LinkedIn excedido", 0, resetAt)
	default:
		return apperrors.NewExternalAPI(resp.StatusCode,
			fmt.Sprintf("LinkedIn API returned status %d: %s", resp.StatusCode, string(payload)), nil)
	}
}
