package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/lib/pq"
	"github.com/linkpilot/linkpilot/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error)
	UpdateEngagement(ctx context.Context, id int64, engagement json.RawMessage) error
	CheckByUserID(ctx context.Context, postID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, COALESCE(scheduled_post_id, 0), content, image_urls,
	COALESCE(article_url, ''), linkedin_id, platform, post_type,
	COALESCE(company_page_id, ''), COALESCE(engagement, 'null'), created_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	var engagement []byte
	err := row.Scan(&post.ID, &post.UserID, &post.ScheduledPostID, &post.Content,
		pq.Array(&post.ImageURLs), &post.ArticleURL, &post.LinkedInID,
		&post.Platform, &post.PostType, &post.CompanyPageID, &engagement, &post.CreatedAt)
	if err != nil {
		return nil, err
	}
	if string(engagement) != "null" {
		post.Engagement = json.RawMessage(engagement)
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts
			(user_id, scheduled_post_id, content, image_urls, article_url,
			 linkedin_id, platform, post_type, company_page_id)
		VALUES ($1, NULLIF($2, 0), $3, $4, NULLIF($5, ''), $6, $7, $8, NULLIF($9, ''))
		RETURNING id
	`

	args := []any{post.UserID, post.ScheduledPostID, post.Content, pq.Array(post.ImageURLs),
		post.ArticleURL, post.LinkedInID, post.Platform, post.PostType, post.CompanyPageID}

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

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) UpdateEngagement(ctx context.Context, id int64, engagement json.RawMessage) error {
	query := `UPDATE posts SET engagement = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, []byte(engagement), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) CheckByUserID(ctx context.Context, postID, userID int64) (bool, error) {
	query := `SELECT 1 FROM posts WHERE id = $1 AND user_id = $2`

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

func (r *postRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM posts WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
