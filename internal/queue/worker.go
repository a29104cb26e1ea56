package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleEngagementRefreshTask(ctx context.Context, task *asynq.Task) error {
	var payload EngagementRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	q.RefreshEngagement(ctx, payload.PostID)

	return nil
}

// RefreshEngagement pulls metrics for a published post and stores them on
// the history row. Everything here is best-effort: any failure is logged
// and the row simply keeps no engagement data.
func (q *Queue) RefreshEngagement(ctx context.Context, postID int64) {
	post, err := q.pr.GetByID(ctx, postID)
	if err != nil || post == nil {
		slog.Info("engagement refresh: post not found", "post_id", postID)
		return
	}
	if post.ScheduledPostID == 0 {
		// Directly published posts keep no credentials; nothing to fetch with.
		return
	}

	sched, err := q.sp.GetByID(ctx, post.ScheduledPostID)
	if err != nil || sched == nil {
		slog.Info("engagement refresh: scheduled post not found", "post_id", postID)
		return
	}

	accessToken, err := q.codec.Decrypt(sched.AccessToken)
	if err != nil {
		slog.Info("engagement refresh: credential decryption failed", "post_id", postID)
		return
	}

	metrics, err := q.li.GetAnalytics(ctx, accessToken, post.LinkedInID)
	if err != nil {
		slog.Info("engagement refresh: analytics unavailable", "post_id", postID, "error", err.Error())
		return
	}

	engagement, err := json.Marshal(metrics)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	if err := q.pr.UpdateEngagement(ctx, postID, engagement); err != nil {
		slog.Info("engagement refresh: update failed", "post_id", postID, "error", err.Error())
	}
}
