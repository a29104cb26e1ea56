package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// Post is a published-post history row. Engagement is refreshed best-effort
// after publishing and may stay empty forever.
type Post struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	ScheduledPostID int64           `db:"scheduled_post_id" json:"scheduled_post_id,omitempty"`
	Content         string          `db:"content" json:"content"`
	ImageURLs       pq.StringArray  `db:"image_urls" json:"image_urls,omitempty"`
	ArticleURL      string          `db:"article_url" json:"article_url,omitempty"`
	LinkedInID      string          `db:"linkedin_id" json:"linkedin_id"`
	Platform        string          `db:"platform" json:"platform"`
	PostType        string          `db:"post_type" json:"post_type"`
	CompanyPageID   string          `db:"company_page_id" json:"company_page_id,omitempty"`
	Engagement      json.RawMessage `db:"engagement" json:"engagement,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}
