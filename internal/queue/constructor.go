package queue

import (
	"github.com/linkpilot/linkpilot/internal/repository"
	"github.com/linkpilot/linkpilot/internal/service"
	"github.com/linkpilot/linkpilot/pkg/utils"
)

type Queue struct {
	pr    repository.PostRepository
	sp    repository.ScheduledPostRepository
	li    service.LinkedInService
	codec *utils.Codec
}

func NewQueue(
	pr repository.PostRepository,
	sp repository.ScheduledPostRepository,
	li service.LinkedInService,
	codec *utils.Codec) *Queue {
	return &Queue{
		pr:    pr,
		sp:    sp,
		li:    li,
		codec: codec,
	}
}

const TaskTypeEngagementRefresh = "engagement:refresh"

type EngagementRefreshPayload struct {
	PostID int64 `json:"post_id"`
}
