package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/linkpilot/linkpilot/internal/models"
	"github.com/linkpilot/linkpilot/internal/repository"
	"github.com/linkpilot/linkpilot/internal/service"
	"github.com/linkpilot/linkpilot/internal/transfer"
	"github.com/linkpilot/linkpilot/pkg/utils"
)

// PollInterval is how often the publish tick fires.
const PollInterval = 30 * time.Second

// perPostTimeout bounds each row's publish attempt so one hung LinkedIn
// call cannot block the rest of the tick.
const perPostTimeout = 60 * time.Second

// engagementDelay is how long after publishing the engagement refresh runs;
// metrics need time to accrue.
const engagementDelay = 10 * time.Minute

// EngagementEnqueuer schedules a deferred engagement refresh for a history
// row. nil disables the refresh.
type EngagementEnqueuer interface {
	EnqueueEngagementRefresh(postID int64, delay time.Duration) error
}

// PublishJob drains due scheduled posts. Rows are claimed atomically
// (pending -> publishing) before any network call, so overlapping ticks can
// never publish the same row twice. Failed rows stay failed; there is no
// automatic retry.
type PublishJob struct {
	sp    repository.ScheduledPostRepository
	pr    repository.PostRepository
	li    service.LinkedInService
	codec *utils.Codec
	q     EngagementEnqueuer
}

func NewPublishJob(
	sp repository.ScheduledPostRepository,
	pr repository.PostRepository,
	li service.LinkedInService,
	codec *utils.Codec,
	q EngagementEnqueuer) *PublishJob {
	return &PublishJob{
		sp:    sp,
		pr:    pr,
		li:    li,
		codec: codec,
		q:     q,
	}
}

// PublishDue claims every due pending row and publishes them sequentially.
// Invoked by the process timer each tick; safe to call concurrently because
// the claim is a conditional update.
func (j *PublishJob) PublishDue() {
	ctx := context.Background()

	due, err := j.sp.ClaimDue(ctx, time.Now().UTC())
	if err != nil {
		slog.Info(err.Error())
		return
	}

	for _, post := range due {
		j.publish(ctx, post)
	}
}

func (j *PublishJob) publish(ctx context.Context, post *models.ScheduledPost) {
	// Status write-backs run on a detached context: a claimed row must
	// reach a terminal state even when the publish attempt consumed the
	// whole per-row budget, or it would sit in publishing forever.
	writeCtx := context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(ctx, perPostTimeout)
	defer cancel()

	accessToken, err := j.codec.Decrypt(post.AccessToken)
	if err != nil {
		j.fail(writeCtx, post, "credential decryption error: stored access token could not be decrypted")
		return
	}

	linkedinID, err := j.li.CreatePost(callCtx, accessToken, &transfer.PostCreation{
		Content:       post.Content,
		ImageURLs:     post.ImageURLs,
		ArticleURL:    post.ArticleURL,
		PostType:      post.PostType,
		CompanyPageID: post.CompanyPageID,
	})
	if err != nil {
		msg := err.Error()
		var apiErr *service.APIError
		if errors.As(err, &apiErr) && apiErr.Body != "" {
			msg += " | LinkedIn response: " + apiErr.Body
		}
		j.fail(writeCtx, post, msg)
		return
	}

	if err := j.sp.MarkPosted(writeCtx, post.ID, linkedinID); err != nil {
		slog.Info(err.Error())
		return
	}
	slog.Info("scheduled post published", "id", post.ID, "linkedin_id", linkedinID)

	historyID, err := j.pr.Create(writeCtx, nil, &models.Post{
		UserID:          post.UserID,
		ScheduledPostID: post.ID,
		Content:         post.Content,
		ImageURLs:       post.ImageURLs,
		ArticleURL:      post.ArticleURL,
		LinkedInID:      linkedinID,
		Platform:        post.Platform,
		PostType:        post.PostType,
		CompanyPageID:   post.CompanyPageID,
	})
	if err != nil {
		slog.Info("error saving post history", "id", post.ID, "error", err.Error())
		return
	}

	if j.q != nil {
		if err := j.q.EnqueueEngagementRefresh(historyID, engagementDelay); err != nil {
			slog.Info("error enqueueing engagement refresh", "post_id", historyID, "error", err.Error())
		}
	}
}

func (j *PublishJob) fail(ctx context.Context, post *models.ScheduledPost, msg string) {
	slog.Info("scheduled post failed", "id", post.ID, "error", msg)
	if err := j.sp.MarkFailed(ctx, post.ID, msg); err != nil {
		slog.Info(err.Error())
	}
}
