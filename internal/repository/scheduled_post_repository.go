package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/linkpilot/linkpilot/internal/models"
)

type ScheduledPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error)
	ListByPlatform(ctx context.Context, platform string) ([]*models.ScheduledPost, error)
	ExistsByContentTime(ctx context.Context, content string, scheduledTime time.Time, platform string) (bool, error)
	ClaimDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error)
	MarkPosted(ctx context.Context, id int64, postedPostID string) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type scheduledPostRepository struct {
	db *sql.DB
}

func NewScheduledPostRepository(db *sql.DB) ScheduledPostRepository {
	return &scheduledPostRepository{db: db}
}

const scheduledPostColumns = `id, user_id, content, image_urls,
	COALESCE(article_url, ''), scheduled_time, status,
	COALESCE(access_token, ''), COALESCE(refresh_token, ''),
	COALESCE(posted_post_id, ''), COALESCE(error_message, ''),
	platform, post_type, COALESCE(company_page_id, ''), created_at, updated_at`

func scanScheduledPost(row interface{ Scan(...any) error }) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := row.Scan(&post.ID, &post.UserID, &post.Content, pq.Array(&post.ImageURLs),
		&post.ArticleURL, &post.ScheduledTime, &post.Status,
		&post.AccessToken, &post.RefreshToken,
		&post.PostedPostID, &post.ErrorMessage,
		&post.Platform, &post.PostType, &post.CompanyPageID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *scheduledPostRepository) Create(ctx context.Context, tx *sql.Tx, post *models.ScheduledPost) (int64, error) {
	query := `
		INSERT INTO scheduled_posts
			(user_id, content, image_urls, article_url, scheduled_time, status,
			 access_token, refresh_token, platform, post_type, company_page_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		RETURNING id
	`

	args := []any{post.UserID, post.Content, pq.Array(post.ImageURLs), post.ArticleURL,
		post.ScheduledTime, post.Status, post.AccessToken, post.RefreshToken,
		post.Platform, post.PostType, post.CompanyPageID}

	var id int64
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *scheduledPostRepository) GetByID(ctx context.Context, id int64) (*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE id = $1`
	post, err := scanScheduledPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *scheduledPostRepository) ListByPlatform(ctx context.Context, platform string) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + scheduledPostColumns + ` FROM scheduled_posts WHERE platform = $1 ORDER BY scheduled_time ASC`
	rows, err := r.db.QueryContext(ctx, query, platform)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *scheduledPostRepository) ExistsByContentTime(ctx context.Context, content string, scheduledTime time.Time, platform string) (bool, error) {
	query := `SELECT 1 FROM scheduled_posts WHERE content = $1 AND scheduled_time = $2 AND platform = $3`

	var result int
	err := r.db.QueryRowContext(ctx, query, content, scheduledTime, platform).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// ClaimDue atomically flips every due pending row to publishing and returns
// the claimed rows. A row claimed here can never be picked up again by a
// concurrent or later tick.
func (r *scheduledPostRepository) ClaimDue(ctx context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	query := `
		UPDATE scheduled_posts
		SET status = $1, updated_at = $2
		WHERE status = $3 AND scheduled_time <= $2
		RETURNING ` + scheduledPostColumns

	rows, err := r.db.QueryContext(ctx, query, models.ScheduledStatusPublishing, now, models.ScheduledStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanScheduledPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *scheduledPostRepository) MarkPosted(ctx context.Context, id int64, postedPostID string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1, posted_post_id = $2, error_message = NULL, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.ScheduledStatusPosted, postedPostID, time.Now().UTC(), id, models.ScheduledStatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE scheduled_posts
		SET status = $1, error_message = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.ScheduledStatusFailed, errorMessage, time.Now().UTC(), id, models.ScheduledStatusPublishing)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduledPostRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := `SELECT 1 FROM scheduled_posts WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, postID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

func (r *scheduledPostRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM scheduled_posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
