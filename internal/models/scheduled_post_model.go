package models

import (
	"time"

	"github.com/lib/pq"
)

type ScheduledPost struct {
	ID            int64          `db:"id" json:"id"`
	UserID        int64          `db:"user_id" json:"user_id"`
	Content       string         `db:"content" json:"content"`
	ImageURLs     pq.StringArray `db:"image_urls" json:"image_urls,omitempty"`
	ArticleURL    string         `db:"article_url" json:"article_url,omitempty"`
	ScheduledTime time.Time      `db:"scheduled_time" json:"scheduled_time"`
	Status        string         `db:"status" json:"status"`
	AccessToken   string         `db:"access_token" json:"-"`
	RefreshToken  string         `db:"refresh_token" json:"-"`
	PostedPostID  string         `db:"posted_post_id" json:"posted_post_id,omitempty"`
	ErrorMessage  string         `db:"error_message" json:"error_message,omitempty"`
	Platform      string         `db:"platform" json:"platform"`
	PostType      string         `db:"post_type" json:"post_type"`
	CompanyPageID string         `db:"company_page_id" json:"company_page_id,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

const (
	ScheduledStatusPending    = "pending"
	ScheduledStatusPublishing = "publishing" // claimed by the publish job, in flight
	ScheduledStatusPosted     = "posted"
	ScheduledStatusFailed     = "failed"
)

const (
	PostTypeText     = "text"
	PostTypeImage    = "image"
	PostTypeArticle  = "article"
	PostTypeCarousel = "carousel"
)

const PlatformLinkedIn = "linkedin"

// ResolvePostType decides the post kind once, at creation time, from which
// optional fields are populated.
func ResolvePostType(imageURLs []string, articleURL string) string {
	switch {
	case len(imageURLs) > 1:
		return PostTypeCarousel
	case len(imageURLs) == 1:
		return PostTypeImage
	case articleURL != "":
		return PostTypeArticle
	default:
		return PostTypeText
	}
}
