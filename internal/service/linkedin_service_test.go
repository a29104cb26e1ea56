package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	config "github.com/linkpilot/linkpilot/configs"
	"github.com/linkpilot/linkpilot/internal/transfer"
	"github.com/stretchr/testify/require"
)

func newTestLinkedIn(apiURL, oauthURL string) *linkedInService {
	return &linkedInService{
		cfg: config.Config{
			LinkedInClientID:     "client-id",
			LinkedInClientSecret: "client-secret",
			LinkedInRedirectURI:  "http://localhost:3000/api/posts/oauth/callback",
		},
		client:   &http.Client{Timeout: 5 * time.Second},
		apiURL:   apiURL,
		oauthURL: oauthURL,
	}
}

func TestAuthURL_StateCarriesUserID(t *testing.T) {
	t.Parallel()
	s := newTestLinkedIn("http://api", "https://www.linkedin.com/oauth/v2")

	raw, err := s.AuthURL(42)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/oauth/v2/authorization", u.Path)

	q := u.Query()
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "client-id", q.Get("client_id"))
	require.Equal(t, linkedinScope, q.Get("scope"))

	decoded, err := base64.StdEncoding.DecodeString(q.Get("state"))
	require.NoError(t, err)
	var state struct {
		Random string `json:"random"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(decoded, &state))
	require.Equal(t, int64(42), state.UserID)
	require.NotEmpty(t, state.Random)
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/accessToken", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "new-token",
			"expires_in":   5184000,
			"scope":        linkedinScope,
		})
	}))
	defer srv.Close()

	s := newTestLinkedIn("http://api", srv.URL)
	token, err := s.ExchangeCode(context.Background(), "auth-code")
	require.NoError(t, err)
	require.Equal(t, "new-token", token.AccessToken)
	require.Equal(t, int64(5184000), token.ExpiresIn)

	require.Equal(t, "authorization_code", gotForm.Get("grant_type"))
	require.Equal(t, "auth-code", gotForm.Get("code"))
	require.Equal(t, "client-secret", gotForm.Get("client_secret"))
}

func TestExchangeCode_ProviderErrorIsGeneric(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"token revoked, secret abc123"}`)
	}))
	defer srv.Close()

	s := newTestLinkedIn("http://api", srv.URL)
	_, err := s.ExchangeCode(context.Background(), "bad-code")
	require.Error(t, err)
	// The provider body must never leak into the returned error.
	require.Equal(t, "failed to exchange authorization code for access token", err.Error())
}

func TestGetProfile_OpenID(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/userinfo", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"sub": "abc123", "name": "Jane Doe", "email": "jane@example.com",
		})
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	profile, err := s.GetProfile(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "abc123", profile.Sub)
	require.Equal(t, "Jane Doe", profile.Name)
}

func TestGetProfile_FallsBackToLegacyAPI(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/userinfo" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		require.True(t, strings.HasPrefix(r.URL.Path, "/people/~:"), "unexpected path %s", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id": "legacy-id",
			"firstName": map[string]any{
				"localized": map[string]string{"en_US": "Jane"},
			},
			"lastName": map[string]any{
				"localized": map[string]string{"en_US": "Doe"},
			},
			"emailAddress": "jane@example.com",
		})
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	profile, err := s.GetProfile(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "legacy-id", profile.Sub)
	require.Equal(t, "Jane Doe", profile.Name)
	require.Equal(t, "jane@example.com", profile.Email)
}

func TestGetProfile_BothEndpointsFail(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	_, err := s.GetProfile(context.Background(), "tok")
	require.EqualError(t, err, "failed to fetch LinkedIn profile")
}

// profileAnd returns a handler that serves /userinfo and hands everything
// else to next.
func profileAnd(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/userinfo" {
			json.NewEncoder(w).Encode(map[string]any{"sub": "person-1"})
			return
		}
		next(w, r)
	}
}

func TestCreatePost_TextShare(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(profileAnd(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ugcPosts", r.URL.Path)
		require.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"urn:li:share:999"}`)
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	id, err := s.CreatePost(context.Background(), "tok", &transfer.PostCreation{Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:999", id)

	require.Equal(t, "urn:li:person:person-1", payload["author"])
	require.Equal(t, "PUBLISHED", payload["lifecycleState"])

	share := payload["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	require.Equal(t, "hello", share["shareCommentary"].(map[string]any)["text"])
	require.Equal(t, "NONE", share["shareMediaCategory"])
}

func TestCreatePost_CompanyPageAuthor(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(profileAnd(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fmt.Fprint(w, `{"id":"urn:li:share:1"}`)
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	_, err := s.CreatePost(context.Background(), "tok", &transfer.PostCreation{
		Content:       "org post",
		CompanyPageID: "555",
	})
	require.NoError(t, err)
	require.Equal(t, "urn:li:organization:555", payload["author"])
}

func TestCreatePost_ArticleDegradesToText(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(profileAnd(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fmt.Fprint(w, `{"id":"urn:li:share:2"}`)
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	_, err := s.CreatePost(context.Background(), "tok", &transfer.PostCreation{
		Content:    "read this",
		ArticleURL: "https://example.com/article",
	})
	require.NoError(t, err)

	share := payload["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	require.Equal(t, "NONE", share["shareMediaCategory"])
	require.NotContains(t, share, "media")
}

func TestCreatePost_ErrorMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status  int
		body    string
		wantMsg string
	}{
		{http.StatusUnauthorized, `{"serviceErrorCode":65600}`,
			"LinkedIn access token is invalid or expired. Please reconnect your LinkedIn account."},
		{http.StatusForbidden, `{}`,
			"Insufficient permissions to post on LinkedIn. Please check your LinkedIn app permissions."},
		{http.StatusUnprocessableEntity, `{"message":"text too long"}`,
			"Invalid post content format: text too long"},
		{http.StatusUnprocessableEntity, `{}`,
			"Invalid post content format: Post format validation failed"},
		{http.StatusInternalServerError, `{"message":"backend down"}`,
			"LinkedIn API error: backend down"},
		{http.StatusBadGateway, ``,
			"LinkedIn API error: status 502"},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(profileAnd(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			fmt.Fprint(w, tc.body)
		}))

		s := newTestLinkedIn(srv.URL, "http://oauth")
		_, err := s.CreatePost(context.Background(), "tok", &transfer.PostCreation{Content: "x"})
		require.Error(t, err, "status %d", tc.status)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "status %d", tc.status)
		require.Equal(t, tc.status, apiErr.StatusCode)
		require.Equal(t, tc.wantMsg, apiErr.Message)
		require.Equal(t, tc.body, apiErr.Body)

		srv.Close()
	}
}

func TestCreatePost_ImageUploadFailureDegradesToText(t *testing.T) {
	t.Parallel()
	var payload map[string]any
	srv := httptest.NewServer(profileAnd(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/assets"):
			w.WriteHeader(http.StatusInternalServerError)
		case r.URL.Path == "/ugcPosts":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			fmt.Fprint(w, `{"id":"urn:li:share:3"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	id, err := s.CreatePost(context.Background(), "tok", &transfer.PostCreation{
		Content:       "with broken image",
		UploadedFiles: []transfer.UploadedFile{{Name: "a.png", ContentType: "image/png", Data: []byte{1, 2}}},
	})
	require.NoError(t, err)
	require.Equal(t, "urn:li:share:3", id)

	share := payload["specificContent"].(map[string]any)["com.linkedin.ugc.ShareContent"].(map[string]any)
	require.Equal(t, "NONE", share["shareMediaCategory"])
}

func TestUploadImage_ThreeStepProtocol(t *testing.T) {
	t.Parallel()
	var uploaded []byte
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/assets", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "registerUpload", r.URL.Query().Get("action"))
		var reg map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		owner := reg["registerUploadRequest"].(map[string]any)["owner"]
		require.Equal(t, "urn:li:person:person-1", owner)

		json.NewEncoder(w).Encode(map[string]any{
			"value": map[string]any{
				"asset": "urn:li:digitalmediaAsset:xyz",
				"uploadMechanism": map[string]any{
					"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest": map[string]any{
						"uploadUrl": srv.URL + "/media-upload",
					},
				},
			},
		})
	})
	mux.HandleFunc("/media-upload", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PUT", r.Method)
		require.Equal(t, "image/png", r.Header.Get("Content-Type"))
		uploaded, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	s := newTestLinkedIn(srv.URL, "http://oauth")
	urn, err := s.UploadImage(context.Background(), "tok", "person-1", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	require.Equal(t, "urn:li:digitalmediaAsset:xyz", urn)
	require.Equal(t, []byte("png-bytes"), uploaded)
}

func TestDeletePost(t *testing.T) {
	t.Parallel()
	status := http.StatusNoContent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		require.Equal(t, linkedinVersion, r.Header.Get("LinkedIn-Version"))
		w.WriteHeader(status)
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")

	result, err := s.DeletePost(context.Background(), "tok", "urn:li:share:1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Note)

	// Already gone counts as success.
	status = http.StatusNotFound
	result, err = s.DeletePost(context.Background(), "tok", "urn:li:share:1")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Contains(t, result.Note, "already been deleted")

	status = http.StatusUnauthorized
	_, err = s.DeletePost(context.Background(), "tok", "urn:li:share:1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = s.DeletePost(context.Background(), "tok", "")
	require.EqualError(t, err, "post ID is required for deletion")
}

func TestGetAnalytics(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"likesSummary":    map[string]any{"totalLikes": 12},
			"commentsSummary": map[string]any{"aggregatedTotalComments": 3},
			"sharesSummary":   map[string]any{"totalShares": 4},
			"impressionCount": 250,
		})
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	metrics, err := s.GetAnalytics(context.Background(), "tok", "urn:li:share:1")
	require.NoError(t, err)
	require.Equal(t, &transfer.PostMetrics{Likes: 12, Comments: 3, Shares: 4, Impressions: 250}, metrics)
}

func TestListOrganizations(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "roleAssignee", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]any{
			"elements": []map[string]any{
				{"organizationalTarget": "urn:li:organization:123", "role": "ADMINISTRATOR"},
			},
		})
	}))
	defer srv.Close()

	s := newTestLinkedIn(srv.URL, "http://oauth")
	orgs, err := s.ListOrganizations(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, "123", orgs[0].ID)
	require.Equal(t, "ADMINISTRATOR", orgs[0].Role)
}
