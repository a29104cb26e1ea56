package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/linkpilot/linkpilot/configs"
	"github.com/linkpilot/linkpilot/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	LINKEDIN_API_URL   = "https://api.linkedin.com/v2"
	LINKEDIN_OAUTH_URL = "https://www.linkedin.com/oauth/v2"

	linkedinScope   = "openid profile email w_member_social"
	linkedinVersion = "202407"

	maxImageDownloadSize = 10 << 20
)

// APIError is a non-2xx response from the LinkedIn API. The status code
// lets callers tell expired credentials (401), missing permissions (403)
// and rejected payloads (422) apart; Body keeps the provider response for
// operator diagnostics.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	return e.Message
}

type LinkedInService interface {
	AuthURL(userID int64) (string, error)
	ExchangeCode(ctx context.Context, code string) (*transfer.LinkedInToken, error)
	GetProfile(ctx context.Context, accessToken string) (*transfer.LinkedInProfile, error)
	CreatePost(ctx context.Context, accessToken string, pc *transfer.PostCreation) (string, error)
	UploadImage(ctx context.Context, accessToken, personID string, data []byte, contentType string) (string, error)
	DeletePost(ctx context.Context, accessToken, postID string) (*transfer.DeleteResult, error)
	GetAnalytics(ctx context.Context, accessToken, postID string) (*transfer.PostMetrics, error)
	ListOrganizations(ctx context.Context, accessToken string) ([]*transfer.Organization, error)
}

type linkedInService struct {
	cfg      config.Config
	client   *http.Client
	apiURL   string
	oauthURL string
}

func NewLinkedInService(cfg config.Config) LinkedInService {
	return &linkedInService{
		cfg: cfg,
		// LinkedIn is an untrusted, sometimes-slow dependency; one hung
		// call must not stall a whole publish tick.
		client:   &http.Client{Timeout: 30 * time.Second},
		apiURL:   LINKEDIN_API_URL,
		oauthURL: LINKEDIN_OAUTH_URL,
	}
}

// AuthURL builds the authorization-code URL. The state parameter carries a
// random nonce plus the initiating user's id so the stateless callback can
// correlate the grant.
func (s *linkedInService) AuthURL(userID int64) (string, error) {
	if s.cfg.LinkedInClientID == "" || s.cfg.LinkedInClientSecret == "" {
		return "", errors.New("LinkedIn OAuth configuration is incomplete")
	}

	nonce, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	stateData, err := json.Marshal(map[string]any{
		"random":  nonce,
		"user_id": userID,
	})
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Add("response_type", "code")
	params.Add("client_id", s.cfg.LinkedInClientID)
	params.Add("redirect_uri", s.cfg.LinkedInRedirectURI)
	params.Add("scope", linkedinScope)
	params.Add("state", base64.StdEncoding.EncodeToString(stateData))

	return fmt.Sprintf("%s/authorization?%s", s.oauthURL, params.Encode()), nil
}

func (s *linkedInService) ExchangeCode(ctx context.Context, code string) (*transfer.LinkedInToken, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", s.cfg.LinkedInRedirectURI)
	data.Set("client_id", s.cfg.LinkedInClientID)
	data.Set("client_secret", s.cfg.LinkedInClientSecret)

	req, err := http.NewRequestWithContext(ctx, "POST", s.oauthURL+"/accessToken", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, errors.New("failed to exchange authorization code for access token")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Provider error bodies are logged, never surfaced to the caller.
		body, _ := io.ReadAll(resp.Body)
		slog.Info("LinkedIn token exchange failed", "status", resp.StatusCode, "body", string(body))
		return nil, errors.New("failed to exchange authorization code for access token")
	}

	var token transfer.LinkedInToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		slog.Info(err.Error())
		return nil, errors.New("failed to exchange authorization code for access token")
	}

	return &token, nil
}

// GetProfile tries the OpenID userinfo endpoint first and falls back to the
// legacy people API, mapping both into the same normalized shape.
func (s *linkedInService) GetProfile(ctx context.Context, accessToken string) (*transfer.LinkedInProfile, error) {
	profile, err := s.getOpenIDProfile(ctx, accessToken)
	if err == nil {
		return profile, nil
	}
	slog.Info("OpenID userinfo failed, trying legacy profile API", "error", err.Error())

	profile, err = s.getLegacyProfile(ctx, accessToken)
	if err != nil {
		slog.Info(err.Error())
		return nil, errors.New("failed to fetch LinkedIn profile")
	}
	return profile, nil
}

func (s *linkedInService) getOpenIDProfile(ctx context.Context, accessToken string) (*transfer.LinkedInProfile, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiURL+"/userinfo", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile transfer.LinkedInProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	if profile.Sub == "" {
		return nil, errors.New("userinfo response missing subject id")
	}
	return &profile, nil
}

func (s *linkedInService) getLegacyProfile(ctx context.Context, accessToken string) (*transfer.LinkedInProfile, error) {
	reqURL := s.apiURL + "/people/~:(id,firstName,lastName,emailAddress,profilePicture(displayImage~:playableStreams))"
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("legacy profile API returned status %d", resp.StatusCode)
	}

	var legacy struct {
		ID        string `json:"id"`
		FirstName struct {
			Localized map[string]string `json:"localized"`
		} `json:"firstName"`
		LastName struct {
			Localized map[string]string `json:"localized"`
		} `json:"lastName"`
		EmailAddress   string `json:"emailAddress"`
		ProfilePicture struct {
			DisplayImage struct {
				Elements []struct {
					Identifiers []struct {
						Identifier string `json:"identifier"`
					} `json:"identifiers"`
				} `json:"elements"`
			} `json:"displayImage~"`
		} `json:"profilePicture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&legacy); err != nil {
		return nil, err
	}
	if legacy.ID == "" {
		return nil, errors.New("legacy profile response missing id")
	}

	first := localizedName(legacy.FirstName.Localized)
	last := localizedName(legacy.LastName.Localized)

	var picture string
	if els := legacy.ProfilePicture.DisplayImage.Elements; len(els) > 0 && len(els[0].Identifiers) > 0 {
		picture = els[0].Identifiers[0].Identifier
	}

	return &transfer.LinkedInProfile{
		Sub:     legacy.ID,
		Name:    strings.TrimSpace(first + " " + last),
		Email:   legacy.EmailAddress,
		Picture: picture,
	}, nil
}

func localizedName(m map[string]string) string {
	if v, ok := m["en_US"]; ok {
		return v
	}
	for _, v := range m {
		return v
	}
	return ""
}

// CreatePost publishes a share and returns the platform-assigned post id.
// Image uploads degrade per image: a failed upload is skipped, and a post
// with zero surviving images goes out as text. Article URLs are accepted
// but not attached; article posts degrade to text-only.
func (s *linkedInService) CreatePost(ctx context.Context, accessToken string, pc *transfer.PostCreation) (string, error) {
	profile, err := s.GetProfile(ctx, accessToken)
	if err != nil {
		return "", err
	}

	var authorID string
	if pc.CompanyPageID != "" {
		authorID = "urn:li:organization:" + pc.CompanyPageID
	} else {
		authorID = "urn:li:person:" + profile.Sub
	}

	share := map[string]any{
		"shareCommentary":    map[string]any{"text": pc.Content},
		"shareMediaCategory": "NONE",
	}

	if len(pc.ImageURLs) > 0 || len(pc.UploadedFiles) > 0 {
		mediaURNs := s.uploadAllImages(ctx, accessToken, profile.Sub, pc.ImageURLs, pc.UploadedFiles)
		if len(mediaURNs) > 0 {
			media := make([]map[string]any, 0, len(mediaURNs))
			for _, urn := range mediaURNs {
				media = append(media, map[string]any{
					"status":      "READY",
					"description": map[string]any{"text": "Image"},
					"media":       urn,
					"title":       map[string]any{"text": "Image"},
				})
			}
			share["shareMediaCategory"] = "IMAGE"
			share["media"] = media
		} else {
			slog.Info("no images uploaded successfully, posting as text only")
		}
	} else if strings.TrimSpace(pc.ArticleURL) != "" {
		slog.Info("article attachment is not supported, posting as text only", "article_url", pc.ArticleURL)
	}

	payload := map[string]any{
		"author":         authorID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": share,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	s.setAPIHeaders(req, accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create LinkedIn post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", s.postError(resp.StatusCode, respBody)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", errors.New("no post ID returned from LinkedIn")
	}

	return result.ID, nil
}

func (s *linkedInService) postError(status int, body []byte) error {
	var detail struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &detail)

	var msg string
	switch status {
	case http.StatusUnauthorized:
		msg = "LinkedIn access token is invalid or expired. Please reconnect your LinkedIn account."
	case http.StatusForbidden:
		msg = "Insufficient permissions to post on LinkedIn. Please check your LinkedIn app permissions."
	case http.StatusUnprocessableEntity:
		if detail.Message == "" {
			detail.Message = "Post format validation failed"
		}
		msg = fmt.Sprintf("Invalid post content format: %s", detail.Message)
	default:
		if detail.Message != "" {
			msg = fmt.Sprintf("LinkedIn API error: %s", detail.Message)
		} else {
			msg = fmt.Sprintf("LinkedIn API error: status %d", status)
		}
	}

	return &APIError{StatusCode: status, Message: msg, Body: string(body)}
}

func (s *linkedInService) setAPIHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
}

// uploadAllImages uploads remote URLs and in-memory files, returning the
// URNs that made it. Individual failures are logged and skipped so the
// caller can still publish.
func (s *linkedInService) uploadAllImages(ctx context.Context, accessToken, personID string, imageURLs []string, files []transfer.UploadedFile) []string {
	var urns []string

	for _, imageURL := range imageURLs {
		data, contentType, err := s.downloadImage(ctx, imageURL)
		if err != nil {
			slog.Info("failed to download image", "url", imageURL, "error", err.Error())
			continue
		}
		urn, err := s.UploadImage(ctx, accessToken, personID, data, contentType)
		if err != nil {
			slog.Info("failed to upload image", "url", imageURL, "error", err.Error())
			continue
		}
		urns = append(urns, urn)
	}

	for _, file := range files {
		urn, err := s.UploadImage(ctx, accessToken, personID, file.Data, file.ContentType)
		if err != nil {
			slog.Info("failed to upload file", "name", file.Name, "error", err.Error())
			continue
		}
		urns = append(urns, urn)
	}

	return urns
}

func (s *linkedInService) downloadImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", imageURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageDownloadSize))
	if err != nil {
		return nil, "", err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

// UploadImage runs LinkedIn's three-step media protocol: register an upload
// intent, PUT the raw bytes to the returned URL, return the asset URN.
func (s *linkedInService) UploadImage(ctx context.Context, accessToken, personID string, data []byte, contentType string) (string, error) {
	registerPayload := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{"urn:li:digitalmediaRecipe:feedshare-image"},
			"owner":   "urn:li:person:" + personID,
			"serviceRelationships": []map[string]any{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	body, err := json.Marshal(registerPayload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.apiURL+"/assets?action=registerUpload", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	s.setAPIHeaders(req, accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to register upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload registration returned status %d: %s", resp.StatusCode, respBody)
	}

	var register struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&register); err != nil {
		return "", fmt.Errorf("error parsing upload registration: %w", err)
	}

	uploadURL := register.Value.UploadMechanism["com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"].UploadURL
	if register.Value.Asset == "" || uploadURL == "" {
		return "", errors.New("upload registration missing asset or upload URL")
	}

	putReq, err := http.NewRequestWithContext(ctx, "PUT", uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	putReq.Header.Set("Content-Type", contentType)

	putResp, err := s.client.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("failed to upload image binary: %w", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode < 200 || putResp.StatusCode > 299 {
		return "", fmt.Errorf("image upload returned status %d", putResp.StatusCode)
	}

	return register.Value.Asset, nil
}

// DeletePost removes a published post. A 404 means the post is already gone
// and counts as success.
func (s *linkedInService) DeletePost(ctx context.Context, accessToken, postID string) (*transfer.DeleteResult, error) {
	if postID == "" {
		return nil, errors.New("post ID is required for deletion")
	}

	req, err := http.NewRequestWithContext(ctx, "DELETE", s.apiURL+"/posts/"+url.PathEscape(postID), nil)
	if err != nil {
		return nil, err
	}
	s.setAPIHeaders(req, accessToken)
	req.Header.Set("LinkedIn-Version", linkedinVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &transfer.DeleteResult{
			Success: true,
			PostID:  postID,
			Note:    "post not found (may have been already deleted)",
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, s.postError(resp.StatusCode, respBody)
	}

	return &transfer.DeleteResult{Success: true, PostID: postID}, nil
}

// GetAnalytics is best-effort; callers degrade to "no metrics" on error.
func (s *linkedInService) GetAnalytics(ctx context.Context, accessToken, postID string) (*transfer.PostMetrics, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiURL+"/socialMetrics/"+url.PathEscape(postID), nil)
	if err != nil {
		return nil, err
	}
	s.setAPIHeaders(req, accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("socialMetrics returned status %d", resp.StatusCode)
	}

	var result struct {
		LikesSummary struct {
			TotalLikes int `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalComments int `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
		SharesSummary struct {
			TotalShares int `json:"totalShares"`
		} `json:"sharesSummary"`
		Impressions int `json:"impressionCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &transfer.PostMetrics{
		Likes:       result.LikesSummary.TotalLikes,
		Comments:    result.CommentsSummary.TotalComments,
		Shares:      result.SharesSummary.TotalShares,
		Impressions: result.Impressions,
	}, nil
}

// ListOrganizations returns the company pages the token's user administers.
func (s *linkedInService) ListOrganizations(ctx context.Context, accessToken string) ([]*transfer.Organization, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", s.apiURL+"/organizationalEntityAcls?q=roleAssignee", nil)
	if err != nil {
		return nil, err
	}
	s.setAPIHeaders(req, accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		slog.Info("failed to list organizations", "status", resp.StatusCode, "body", string(respBody))
		return nil, fmt.Errorf("organization lookup returned status %d", resp.StatusCode)
	}

	var result struct {
		Elements []struct {
			OrganizationalTarget string `json:"organizationalTarget"`
			Role                 string `json:"role"`
		} `json:"elements"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	orgs := make([]*transfer.Organization, 0, len(result.Elements))
	for _, el := range result.Elements {
		id := el.OrganizationalTarget
		if i := strings.LastIndex(id, ":"); i >= 0 {
			id = id[i+1:]
		}
		orgs = append(orgs, &transfer.Organization{ID: id, Role: el.Role})
	}
	return orgs, nil
}
