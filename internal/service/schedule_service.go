package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf16"

	"github.com/linkpilot/linkpilot/internal/models"
	"github.com/linkpilot/linkpilot/internal/repository"
	"github.com/linkpilot/linkpilot/internal/transfer"
	"github.com/linkpilot/linkpilot/pkg/utils"
)

// MaxContentLength is LinkedIn's post length limit, counted in UTF-16 code
// units the way the platform counts it.
const MaxContentLength = 3000

// bulkTimeSlots are the hours of day bulk items cycle through (8 AM, 2 PM, 6 PM).
var bulkTimeSlots = []int{8, 14, 18}

var (
	ErrContentRequired  = errors.New("post content is required")
	ErrContentTooLong   = fmt.Errorf("post content exceeds %d characters", MaxContentLength)
	ErrTimeNotFuture    = errors.New("scheduled time must be in the future")
	ErrTokenRequired    = errors.New("LinkedIn access token is required")
	ErrStartNotFuture   = errors.New("start date must be in the future")
	ErrNoPosts          = errors.New("posts array is required")
	ErrBadPostsPerDay   = errors.New("posts per day must be at least 1")
	ErrScheduledMissing = errors.New("scheduled post not found")
)

type ScheduleService interface {
	Schedule(ctx context.Context, userID int64, req *transfer.ScheduleRequest) (*models.ScheduledPost, error)
	BulkSchedule(ctx context.Context, userID int64, req *transfer.BulkScheduleRequest) (int, error)
	List(ctx context.Context) ([]*models.ScheduledPost, error)
	Remove(ctx context.Context, userID, id int64) error
}

type scheduleService struct {
	sp    repository.ScheduledPostRepository
	codec *utils.Codec
}

func NewScheduleService(sp repository.ScheduledPostRepository, codec *utils.Codec) ScheduleService {
	return &scheduleService{sp: sp, codec: codec}
}

// Schedule validates and stores one pending post. Credentials are encrypted
// before the row is written; the due time is normalized to UTC.
func (s *scheduleService) Schedule(ctx context.Context, userID int64, req *transfer.ScheduleRequest) (*models.ScheduledPost, error) {
	content, err := ValidateContent(req.Content)
	if err != nil {
		return nil, err
	}
	if !req.ScheduledTime.After(time.Now()) {
		return nil, ErrTimeNotFuture
	}
	if req.AccessToken == "" {
		return nil, ErrTokenRequired
	}

	if req.RefreshToken == "" {
		slog.Info("refresh token missing for scheduled post, token may expire before publish", "user_id", userID)
	}

	accessToken, err := s.codec.Encrypt(req.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.codec.Encrypt(req.RefreshToken)
	if err != nil {
		return nil, err
	}

	post := &models.ScheduledPost{
		UserID:        userID,
		Content:       content,
		ImageURLs:     req.ImageURLs,
		ArticleURL:    req.ArticleURL,
		ScheduledTime: req.ScheduledTime.UTC(),
		Status:        models.ScheduledStatusPending,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		Platform:      models.PlatformLinkedIn,
		PostType:      models.ResolvePostType(req.ImageURLs, req.ArticleURL),
		CompanyPageID: req.CompanyPageID,
	}

	id, err := s.sp.Create(ctx, nil, post)
	if err != nil {
		return nil, fmt.Errorf("error creating scheduled post: %w", err)
	}
	post.ID = id

	return post, nil
}

// BulkSchedule expands a batch of content items into pending rows. Item i
// lands on day floor(i/postsPerDay) after the start date, at the slot hour
// for i mod postsPerDay. Invalid, past and duplicate items are skipped, not
// errors; only the inserted count is reported.
func (s *scheduleService) BulkSchedule(ctx context.Context, userID int64, req *transfer.BulkScheduleRequest) (int, error) {
	if len(req.Posts) == 0 {
		return 0, ErrNoPosts
	}
	if req.PostsPerDay < 1 {
		return 0, ErrBadPostsPerDay
	}
	if !req.StartDate.After(time.Now()) {
		return 0, ErrStartNotFuture
	}
	if req.AccessToken == "" {
		return 0, ErrTokenRequired
	}

	start := req.StartDate.UTC()
	scheduled := 0

	for i, item := range req.Posts {
		content, err := ValidateContent(item.Content)
		if err != nil {
			continue
		}

		dayOffset := i / req.PostsPerDay
		slot := i % req.PostsPerDay
		hour := bulkTimeSlots[slot%len(bulkTimeSlots)]

		day := start.AddDate(0, 0, dayOffset)
		scheduledTime := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)

		if !scheduledTime.After(time.Now()) {
			continue
		}

		exists, err := s.sp.ExistsByContentTime(ctx, content, scheduledTime, models.PlatformLinkedIn)
		if err != nil {
			return scheduled, err
		}
		if exists {
			continue
		}

		accessToken, err := s.codec.Encrypt(req.AccessToken)
		if err != nil {
			return scheduled, err
		}
		refreshToken, err := s.codec.Encrypt(req.RefreshToken)
		if err != nil {
			return scheduled, err
		}

		post := &models.ScheduledPost{
			UserID:        userID,
			Content:       content,
			ImageURLs:     item.ImageURLs,
			ArticleURL:    item.ArticleURL,
			ScheduledTime: scheduledTime,
			Status:        models.ScheduledStatusPending,
			AccessToken:   accessToken,
			RefreshToken:  refreshToken,
			Platform:      models.PlatformLinkedIn,
			PostType:      models.ResolvePostType(item.ImageURLs, item.ArticleURL),
			CompanyPageID: req.CompanyPageID,
		}
		if _, err := s.sp.Create(ctx, nil, post); err != nil {
			return scheduled, fmt.Errorf("error creating scheduled post: %w", err)
		}
		scheduled++
	}

	return scheduled, nil
}

func (s *scheduleService) List(ctx context.Context) ([]*models.ScheduledPost, error) {
	posts, err := s.sp.ListByPlatform(ctx, models.PlatformLinkedIn)
	if err != nil {
		return nil, fmt.Errorf("error listing scheduled posts: %w", err)
	}
	return posts, nil
}

func (s *scheduleService) Remove(ctx context.Context, userID, id int64) error {
	isValid, err := s.sp.CheckByUserID(ctx, id, userID)
	if err != nil {
		return err
	}
	if !isValid {
		slog.Info("scheduled post not found", "id", id, "user_id", userID)
		return ErrScheduledMissing
	}

	if err := s.sp.Remove(ctx, id); err != nil {
		return fmt.Errorf("error removing scheduled post: %w", err)
	}
	return nil
}

// sanitizeContent trims whitespace and drops control characters other than
// newlines and tabs.
// ValidateContent sanitizes post content and enforces the platform length
// limit. Scheduled and immediate publishing share it so the two paths can
// never drift.
func ValidateContent(content string) (string, error) {
	content = sanitizeContent(content)
	if content == "" {
		return "", ErrContentRequired
	}
	if contentLength(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

func sanitizeContent(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func contentLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}
