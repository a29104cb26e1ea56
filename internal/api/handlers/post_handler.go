package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/linkpilot/linkpilot/internal/models"
	"github.com/linkpilot/linkpilot/internal/repository"
	"github.com/linkpilot/linkpilot/internal/service"
	"github.com/linkpilot/linkpilot/internal/transfer"
)

type PostHandler struct {
	li service.LinkedInService
	pr repository.PostRepository
}

func NewPostHandler(li service.LinkedInService, pr repository.PostRepository) *PostHandler {
	return &PostHandler{li: li, pr: pr}
}

type postNowRequest struct {
	Content       string   `json:"content"`
	AccessToken   string   `json:"linkedin_access_token"`
	CompanyPageID string   `json:"company_page_id,omitempty"`
	ArticleURL    string   `json:"article_url,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
}

// PostNow publishes immediately. Multipart image files are uploaded to
// LinkedIn straight from memory; they never touch storage.
func (h *PostHandler) PostNow(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req postNowRequest
	var files []transfer.UploadedFile

	if form, err := c.MultipartForm(); err == nil && form != nil {
		req.Content = c.FormValue("content")
		req.AccessToken = c.FormValue("linkedin_access_token")
		req.CompanyPageID = c.FormValue("company_page_id")
		req.ArticleURL = c.FormValue("article_url")

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
			files = append(files, transfer.UploadedFile{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request",
		})
	}

	content, err := service.ValidateContent(req.Content)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	req.Content = content

	if req.AccessToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "LinkedIn access token is required",
		})
	}

	if _, err := h.li.GetProfile(c.Context(), req.AccessToken); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "LinkedIn access token is invalid or expired. Please reconnect your LinkedIn account.",
		})
	}

	imageRefs := append([]string{}, req.ImageURLs...)
	for _, f := range files {
		imageRefs = append(imageRefs, f.Name)
	}
	postType := models.ResolvePostType(imageRefs, req.ArticleURL)

	linkedinID, err := h.li.CreatePost(c.Context(), req.AccessToken, &transfer.PostCreation{
		Content:       req.Content,
		ImageURLs:     req.ImageURLs,
		UploadedFiles: files,
		ArticleURL:    req.ArticleURL,
		PostType:      postType,
		CompanyPageID: req.CompanyPageID,
	})
	if err != nil {
		status := fiber.StatusInternalServerError
		var apiErr *service.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	localID, err := h.pr.Create(c.Context(), nil, &models.Post{
		UserID:        userID,
		Content:       req.Content,
		ImageURLs:     req.ImageURLs,
		ArticleURL:    req.ArticleURL,
		LinkedInID:    linkedinID,
		Platform:      models.PlatformLinkedIn,
		PostType:      postType,
		CompanyPageID: req.CompanyPageID,
	})
	if err != nil {
		// The share is already live; report the platform id anyway.
		slog.Error("failed to record published post", "error", err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"post_id":       linkedinID,
		"local_post_id": localID,
	})
}

func (h *PostHandler) GetHistory(c *fiber.Ctx) error {
	userID := GetUserID(c)

	posts, err := h.pr.GetByUserID(c.Context(), userID)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

// DeletePost removes the history row and, when a token is supplied, the
// LinkedIn share too. A missing token only skips the remote delete.
func (h *PostHandler) DeletePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	ok, err := h.pr.CheckByUserID(c.Context(), int64(postID), userID)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post not found",
		})
	}

	post, err := h.pr.GetByID(c.Context(), int64(postID))
	if err != nil || post == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post not found",
		})
	}

	result := &transfer.DeleteResult{Success: true, PostID: post.LinkedInID}
	accessToken := c.Query("linkedin_access_token")
	if accessToken != "" && post.LinkedInID != "" {
		result, err = h.li.DeletePost(c.Context(), accessToken, post.LinkedInID)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	} else {
		result.Note = "remote delete skipped: no access token provided"
	}

	if err := h.pr.Remove(c.Context(), int64(postID)); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove post",
		})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PostHandler) OAuthURL(c *fiber.Ctx) error {
	userID := GetUserID(c)

	authURL, err := h.li.AuthURL(userID)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"url": authURL,
	})
}

func (h *PostHandler) OAuthCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing authorization code",
		})
	}

	var stateData struct {
		Random string `json:"random"`
		UserID int64  `json:"user_id"`
	}
	decoded, err := base64.StdEncoding.DecodeString(state)
	if err == nil {
		err = json.Unmarshal(decoded, &stateData)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid state parameter",
		})
	}

	token, err := h.li.ExchangeCode(c.Context(), code)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	profile, err := h.li.GetProfile(c.Context(), token.AccessToken)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id": stateData.UserID,
		"token":   token,
		"profile": profile,
	})
}

func (h *PostHandler) Organizations(c *fiber.Ctx) error {
	accessToken := c.Query("linkedin_access_token")
	if accessToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "LinkedIn access token is required",
		})
	}

	orgs, err := h.li.ListOrganizations(c.Context(), accessToken)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(orgs)
}
