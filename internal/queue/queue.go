package queue

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

func EnqueueEngagementRefresh(asynqClient *asynq.Client, payload EngagementRefreshPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeEngagementRefresh, taskPayload)

	_, err = asynqClient.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	log.Printf("Engagement refresh scheduled: %+v", payload)
	return nil
}

// Enqueuer adapts an asynq client to the publish job.
type Enqueuer struct {
	Client *asynq.Client
}

func (e *Enqueuer) EnqueueEngagementRefresh(postID int64, delay time.Duration) error {
	return EnqueueEngagementRefresh(e.Client, EngagementRefreshPayload{PostID: postID}, delay)
}
