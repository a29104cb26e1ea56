package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linkpilot/linkpilot/internal/service"
	"github.com/linkpilot/linkpilot/internal/transfer"
)

type ScheduleHandler struct {
	s     service.ScheduleService
	media *service.MediaService
}

func NewScheduleHandler(s service.ScheduleService, media *service.MediaService) *ScheduleHandler {
	return &ScheduleHandler{s: s, media: media}
}

// SchedulePost accepts either a JSON body or a multipart form. Multipart
// image files are stored to R2 first so the pending row only carries URLs.
func (h *ScheduleHandler) SchedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.ScheduleRequest
	if form, err := c.MultipartForm(); err == nil && form != nil {
		req.Content = c.FormValue("content")
		req.AccessToken = c.FormValue("linkedin_access_token")
		req.RefreshToken = c.FormValue("linkedin_refresh_token")
		req.CompanyPageID = c.FormValue("company_page_id")
		req.ArticleURL = c.FormValue("article_url")

		scheduledTime, err := parseTime(c.FormValue("scheduled_time"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid scheduled_time",
			})
		}
		req.ScheduledTime = scheduledTime

		for _, fh := range form.File["files"] {
			f, err := fh.Open()
			if err != nil {
				slog.Error(err.Error())
				continue
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				slog.Error(err.Error())
				continue
			}

			imageURL, err := h.media.StoreImage(c.Context(), data)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			req.ImageURLs = append(req.ImageURLs, imageURL)
		}
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	post, err := h.s.Schedule(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *ScheduleHandler) ListScheduled(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context())
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list scheduled posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *ScheduleHandler) DeleteScheduled(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	if err := h.s.Remove(c.Context(), userID, int64(postID)); err != nil {
		if errors.Is(err, service.ErrScheduledMissing) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove scheduled post",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Scheduled post deleted",
	})
}

func (h *ScheduleHandler) BulkSchedule(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.BulkScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	count, err := h.s.BulkSchedule(c.Context(), userID, &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": fmt.Sprintf("Scheduled %d posts", count),
	})
}

// parseTime accepts RFC 3339 and the shorter datetime-local format that
// HTML forms submit.
func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04", value)
}
