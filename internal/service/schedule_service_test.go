package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/linkpilot/linkpilot/internal/models"
	"github.com/linkpilot/linkpilot/internal/repository"
	"github.com/linkpilot/linkpilot/internal/transfer"
	"github.com/linkpilot/linkpilot/pkg/utils"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeScheduledRepo struct {
	posts  []*models.ScheduledPost
	nextID int64
}

var _ repository.ScheduledPostRepository = (*fakeScheduledRepo)(nil)

func (f *fakeScheduledRepo) Create(_ context.Context, _ *sql.Tx, post *models.ScheduledPost) (int64, error) {
	f.nextID++
	cpy := *post
	cpy.ID = f.nextID
	f.posts = append(f.posts, &cpy)
	return cpy.ID, nil
}

func (f *fakeScheduledRepo) GetByID(_ context.Context, id int64) (*models.ScheduledPost, error) {
	for _, p := range f.posts {
		if p.ID == id {
			cpy := *p
			return &cpy, nil
		}
	}
	return nil, nil
}

func (f *fakeScheduledRepo) ListByPlatform(_ context.Context, platform string) ([]*models.ScheduledPost, error) {
	var out []*models.ScheduledPost
	for _, p := range f.posts {
		if p.Platform == platform {
			cpy := *p
			out = append(out, &cpy)
		}
	}
	return out, nil
}

func (f *fakeScheduledRepo) ExistsByContentTime(_ context.Context, content string, scheduledTime time.Time, platform string) (bool, error) {
	for _, p := range f.posts {
		if p.Content == content && p.ScheduledTime.Equal(scheduledTime) && p.Platform == platform {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeScheduledRepo) ClaimDue(_ context.Context, now time.Time) ([]*models.ScheduledPost, error) {
	var claimed []*models.ScheduledPost
	for _, p := range f.posts {
		if p.Status == models.ScheduledStatusPending && !p.ScheduledTime.After(now) {
			p.Status = models.ScheduledStatusPublishing
			cpy := *p
			claimed = append(claimed, &cpy)
		}
	}
	return claimed, nil
}

func (f *fakeScheduledRepo) MarkPosted(_ context.Context, id int64, postedPostID string) error {
	for _, p := range f.posts {
		if p.ID == id && p.Status == models.ScheduledStatusPublishing {
			p.Status = models.ScheduledStatusPosted
			p.PostedPostID = postedPostID
			p.ErrorMessage = ""
		}
	}
	return nil
}

func (f *fakeScheduledRepo) MarkFailed(_ context.Context, id int64, errorMessage string) error {
	for _, p := range f.posts {
		if p.ID == id && p.Status == models.ScheduledStatusPublishing {
			p.Status = models.ScheduledStatusFailed
			p.ErrorMessage = errorMessage
		}
	}
	return nil
}

func (f *fakeScheduledRepo) CheckByUserID(_ context.Context, postID, userID int64) (bool, error) {
	for _, p := range f.posts {
		if p.ID == postID && p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeScheduledRepo) Remove(_ context.Context, id int64) error {
	for i, p := range f.posts {
		if p.ID == id {
			f.posts = append(f.posts[:i], f.posts[i+1:]...)
			return nil
		}
	}
	return nil
}

func newScheduleService(t *testing.T) (ScheduleService, *fakeScheduledRepo, *utils.Codec) {
	t.Helper()
	codec, err := utils.NewCodec(testEncryptionKey)
	require.NoError(t, err)
	repo := &fakeScheduledRepo{}
	return NewScheduleService(repo, codec), repo, codec
}

func TestSchedule_StoresPendingRowWithEncryptedTokens(t *testing.T) {
	t.Parallel()
	svc, repo, codec := newScheduleService(t)

	scheduledTime := time.Now().Add(2 * time.Hour)
	post, err := svc.Schedule(context.Background(), 7, &transfer.ScheduleRequest{
		Content:       "  hello world  ",
		ScheduledTime: scheduledTime,
		AccessToken:   "raw-access-token",
		RefreshToken:  "raw-refresh-token",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), post.ID)
	require.Equal(t, "hello world", post.Content)
	require.Equal(t, models.ScheduledStatusPending, post.Status)
	require.Equal(t, models.PlatformLinkedIn, post.Platform)
	require.Equal(t, models.PostTypeText, post.PostType)
	require.Equal(t, time.UTC, post.ScheduledTime.Location())

	stored := repo.posts[0]
	require.NotEqual(t, "raw-access-token", stored.AccessToken)
	require.Contains(t, stored.AccessToken, ":")

	decrypted, err := codec.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "raw-access-token", decrypted)
}

func TestSchedule_PostTypeResolution(t *testing.T) {
	t.Parallel()
	svc, _, _ := newScheduleService(t)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		imageURLs  []string
		articleURL string
		want       string
	}{
		{nil, "", models.PostTypeText},
		{[]string{"https://img/1.png"}, "", models.PostTypeImage},
		{[]string{"https://img/1.png", "https://img/2.png"}, "", models.PostTypeCarousel},
		{nil, "https://example.com/article", models.PostTypeArticle},
		{[]string{"https://img/1.png"}, "https://example.com/article", models.PostTypeImage},
	}
	for _, tc := range cases {
		post, err := svc.Schedule(context.Background(), 1, &transfer.ScheduleRequest{
			Content:       "content",
			ScheduledTime: future,
			AccessToken:   "tok",
			ImageURLs:     tc.imageURLs,
			ArticleURL:    tc.articleURL,
		})
		require.NoError(t, err)
		require.Equal(t, tc.want, post.PostType)
		future = future.Add(time.Minute)
	}
}

func TestSchedule_Validation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newScheduleService(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	_, err := svc.Schedule(ctx, 1, &transfer.ScheduleRequest{
		Content: "   ", ScheduledTime: future, AccessToken: "tok",
	})
	require.ErrorIs(t, err, ErrContentRequired)

	_, err = svc.Schedule(ctx, 1, &transfer.ScheduleRequest{
		Content: strings.Repeat("a", MaxContentLength+1), ScheduledTime: future, AccessToken: "tok",
	})
	require.ErrorIs(t, err, ErrContentTooLong)

	_, err = svc.Schedule(ctx, 1, &transfer.ScheduleRequest{
		Content: "ok", ScheduledTime: time.Now().Add(-time.Minute), AccessToken: "tok",
	})
	require.ErrorIs(t, err, ErrTimeNotFuture)

	_, err = svc.Schedule(ctx, 1, &transfer.ScheduleRequest{
		Content: "ok", ScheduledTime: future,
	})
	require.ErrorIs(t, err, ErrTokenRequired)
}

func TestBulkSchedule_SlotAssignment(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newScheduleService(t)

	start := time.Now().UTC().AddDate(0, 0, 2)
	count, err := svc.BulkSchedule(context.Background(), 3, &transfer.BulkScheduleRequest{
		Posts: []transfer.BulkItem{
			{Content: "post 0"}, {Content: "post 1"}, {Content: "post 2"},
			{Content: "post 3"}, {Content: "post 4"},
		},
		StartDate:   start,
		PostsPerDay: 2,
		AccessToken: "tok",
	})
	require.NoError(t, err)
	require.Equal(t, 5, count)
	require.Len(t, repo.posts, 5)

	wantDays := []int{0, 0, 1, 1, 2}
	wantHours := []int{8, 14, 8, 14, 8}
	for i, p := range repo.posts {
		day := start.AddDate(0, 0, wantDays[i])
		want := time.Date(day.Year(), day.Month(), day.Day(), wantHours[i], 0, 0, 0, time.UTC)
		require.True(t, p.ScheduledTime.Equal(want), "post %d: got %v, want %v", i, p.ScheduledTime, want)
		require.Equal(t, models.ScheduledStatusPending, p.Status)
	}
}

func TestBulkSchedule_SkipsDuplicatesOnRerun(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newScheduleService(t)

	req := &transfer.BulkScheduleRequest{
		Posts:       []transfer.BulkItem{{Content: "a"}, {Content: "b"}},
		StartDate:   time.Now().UTC().AddDate(0, 0, 2),
		PostsPerDay: 1,
		AccessToken: "tok",
	}
	count, err := svc.BulkSchedule(context.Background(), 1, req)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = svc.BulkSchedule(context.Background(), 1, req)
	require.NoError(t, err)
	require.Equal(t, 0, count)
	require.Len(t, repo.posts, 2)
}

func TestBulkSchedule_SkipsInvalidItems(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newScheduleService(t)

	count, err := svc.BulkSchedule(context.Background(), 1, &transfer.BulkScheduleRequest{
		Posts: []transfer.BulkItem{
			{Content: "valid"},
			{Content: "   "},
			{Content: strings.Repeat("x", MaxContentLength+1)},
		},
		StartDate:   time.Now().UTC().AddDate(0, 0, 2),
		PostsPerDay: 3,
		AccessToken: "tok",
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, repo.posts, 1)
}

func TestBulkSchedule_Validation(t *testing.T) {
	t.Parallel()
	svc, _, _ := newScheduleService(t)
	ctx := context.Background()
	future := time.Now().AddDate(0, 0, 1)

	_, err := svc.BulkSchedule(ctx, 1, &transfer.BulkScheduleRequest{
		StartDate: future, PostsPerDay: 1, AccessToken: "tok",
	})
	require.ErrorIs(t, err, ErrNoPosts)

	_, err = svc.BulkSchedule(ctx, 1, &transfer.BulkScheduleRequest{
		Posts: []transfer.BulkItem{{Content: "a"}}, StartDate: future, AccessToken: "tok",
	})
	require.ErrorIs(t, err, ErrBadPostsPerDay)

	_, err = svc.BulkSchedule(ctx, 1, &transfer.BulkScheduleRequest{
		Posts: []transfer.BulkItem{{Content: "a"}}, StartDate: time.Now().Add(-time.Hour), PostsPerDay: 1, AccessToken: "tok",
	})
	require.ErrorIs(t, err, ErrStartNotFuture)

	_, err = svc.BulkSchedule(ctx, 1, &transfer.BulkScheduleRequest{
		Posts: []transfer.BulkItem{{Content: "a"}}, StartDate: future, PostsPerDay: 1,
	})
	require.ErrorIs(t, err, ErrTokenRequired)
}

func TestRemove_ChecksOwnership(t *testing.T) {
	t.Parallel()
	svc, repo, _ := newScheduleService(t)

	post, err := svc.Schedule(context.Background(), 5, &transfer.ScheduleRequest{
		Content:       "mine",
		ScheduledTime: time.Now().Add(time.Hour),
		AccessToken:   "tok",
	})
	require.NoError(t, err)

	err = svc.Remove(context.Background(), 99, post.ID)
	require.ErrorIs(t, err, ErrScheduledMissing)
	require.Len(t, repo.posts, 1)

	err = svc.Remove(context.Background(), 5, post.ID)
	require.NoError(t, err)
	require.Empty(t, repo.posts)
}

func TestContentLength_CountsUTF16Units(t *testing.T) {
	t.Parallel()
	// Emoji outside the BMP count as two units, matching LinkedIn's limit.
	require.Equal(t, 2, contentLength("🚀"))
	require.Equal(t, 5, contentLength("hello"))
}
