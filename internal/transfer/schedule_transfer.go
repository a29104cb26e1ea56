package transfer

import "time"

type ScheduleRequest struct {
	Content       string    `json:"content"`
	ScheduledTime time.Time `json:"scheduled_time"`
	AccessToken   string    `json:"linkedin_access_token"`
	RefreshToken  string    `json:"linkedin_refresh_token,omitempty"`
	CompanyPageID string    `json:"company_page_id,omitempty"`
	ArticleURL    string    `json:"article_url,omitempty"`
	ImageURLs     []string  `json:"image_urls,omitempty"`
}

type BulkItem struct {
	Content    string   `json:"content"`
	ArticleURL string   `json:"article_url,omitempty"`
	ImageURLs  []string `json:"image_urls,omitempty"`
}

type BulkScheduleRequest struct {
	Posts         []BulkItem `json:"posts"`
	StartDate     time.Time  `json:"start_date"`
	PostsPerDay   int        `json:"posts_per_day"`
	AccessToken   string     `json:"linkedin_access_token"`
	RefreshToken  string     `json:"linkedin_refresh_token,omitempty"`
	CompanyPageID string     `json:"company_page_id,omitempty"`
}
