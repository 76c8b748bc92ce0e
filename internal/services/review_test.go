package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huangang/campusgig/internal/models"
)

func intPtr(v int) *int { return &v }

func TestCreateReview_BothPartiesRevealTogether(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)

	f.clock.Set(t0.Add(time.Hour))
	first := f.review(t, job.ID, employerID, 5)
	if first.IsVisible {
		t.Fatal("a lone review inside the window must stay hidden")
	}
	if first.RevieweeID != studentID || first.ReviewerRole != models.RoleEmployer {
		t.Errorf("derived reviewee/role = (%d, %q)", first.RevieweeID, first.ReviewerRole)
	}

	f.clock.Set(t0.Add(2 * time.Hour))
	second := f.review(t, job.ID, studentID, 4)
	if !second.IsVisible {
		t.Fatal("second review should come back visible")
	}

	a, b := f.loadReview(t, first.ID), f.loadReview(t, second.ID)
	if !a.IsVisible || !b.IsVisible {
		t.Fatalf("both reviews should be visible, got %v and %v", a.IsVisible, b.IsVisible)
	}
	want := t0.Add(2 * time.Hour)
	if a.VisibleAt == nil || b.VisibleAt == nil || !a.VisibleAt.Equal(*b.VisibleAt) || !a.VisibleAt.Equal(want) {
		t.Errorf("visible_at = %v / %v, expected both %v", a.VisibleAt, b.VisibleAt, want)
	}
	if got := f.notifier.Revealed(); len(got) != 2 {
		t.Errorf("notifier saw %v, expected both reviews", got)
	}
	if got := f.loadJob(t, job.ID).Status; got != models.JobStatusCompleted {
		t.Errorf("job status = %q, expected completed after both reviews", got)
	}
}

func TestCreateReview_SweepRevealsLoneReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)

	f.clock.Set(t0.Add(time.Hour))
	only := f.review(t, job.ID, employerID, 4)

	// exactly at the deadline nothing happens
	f.clock.Set(t0.Add(14 * 24 * time.Hour))
	res, err := f.sweep.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.Revealed != 0 || f.loadReview(t, only.ID).IsVisible {
		t.Fatal("review must stay hidden until the deadline has passed")
	}

	f.clock.Set(t0.Add(14*24*time.Hour + time.Minute))
	res, err = f.sweep.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.Revealed != 1 || res.JobsFinalized != 1 {
		t.Errorf("RunOnce() = %+v, expected 1 revealed and 1 finalized", res)
	}

	r := f.loadReview(t, only.ID)
	if !r.IsVisible || r.VisibleAt == nil || !r.VisibleAt.Equal(t0.Add(14*24*time.Hour+time.Minute)) {
		t.Errorf("review = visible %v at %v", r.IsVisible, r.VisibleAt)
	}

	var count int64
	f.db.Model(&models.Review{}).Where("job_id = ? AND reviewer_id = ?", job.ID, studentID).Count(&count)
	if count != 0 {
		t.Errorf("no student review should exist, found %d", count)
	}

	// a second pass finds nothing left to do
	res, err = f.sweep.RunOnce(ctx)
	if err != nil || res.JobsScanned != 0 {
		t.Errorf("second RunOnce() = (%+v, %v), expected nothing scanned", res, err)
	}
}

func TestCreateReview_LateCounterpartKeepsEarlierRevealTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)

	f.clock.Set(t0.Add(time.Hour))
	early := f.review(t, job.ID, employerID, 5)

	sweptAt := t0.Add(15 * 24 * time.Hour)
	f.clock.Set(sweptAt)
	if res, err := f.sweep.RunOnce(ctx); err != nil || res.Revealed != 1 || res.JobsFinalized != 1 {
		t.Fatalf("RunOnce() = (%+v, %v), expected the lone review revealed", res, err)
	}

	lateAt := t0.Add(16 * 24 * time.Hour)
	f.clock.Set(lateAt)
	late := f.review(t, job.ID, studentID, 3)
	if !late.IsVisible {
		t.Fatal("a review arriving after its counterpart was revealed should be visible at once")
	}

	if r := f.loadReview(t, late.ID); r.VisibleAt == nil || !r.VisibleAt.Equal(lateAt) {
		t.Errorf("late review visible_at = %v, expected %v", r.VisibleAt, lateAt)
	}
	if r := f.loadReview(t, early.ID); r.VisibleAt == nil || !r.VisibleAt.Equal(sweptAt) {
		t.Errorf("earlier review visible_at = %v, expected it to stay %v", r.VisibleAt, sweptAt)
	}
	if got := f.notifier.Revealed(); len(got) != 2 || got[0] != early.ID || got[1] != late.ID {
		t.Errorf("notifier saw %v, expected each review announced once", got)
	}
	if got := f.loadJob(t, job.ID).Status; got != models.JobStatusCompleted {
		t.Errorf("job status = %q, expected completed", got)
	}
}

func TestCreateReview_Duplicate(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)
	f.review(t, job.ID, employerID, 5)

	_, err := f.reviews.CreateReview(context.Background(), employerID, &CreateReviewRequest{JobID: job.ID, Rating: 3})
	if !errors.Is(err, ErrDuplicateReview) {
		t.Fatalf("second review error = %v, expected ErrDuplicateReview", err)
	}
}

func TestCreateReview_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)

	const attempts = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dupes     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reviews.CreateReview(context.Background(), studentID, &CreateReviewRequest{JobID: job.ID, Rating: 4})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicateReview):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || dupes != attempts-1 {
		t.Errorf("succeeded=%d dupes=%d, expected 1 and %d", succeeded, dupes, attempts-1)
	}
	var count int64
	f.db.Model(&models.Review{}).Where("job_id = ? AND reviewer_id = ?", job.ID, studentID).Count(&count)
	if count != 1 {
		t.Errorf("stored %d reviews, expected 1", count)
	}
}

func TestCreateReview_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)
	active := f.seedJob(t, models.JobStatusInProgress)

	tests := []struct {
		name    string
		actorID uint
		req     CreateReviewRequest
		want    error
	}{
		{"missing job", employerID, CreateReviewRequest{JobID: 999, Rating: 5}, ErrNotFound},
		{"job not completed", employerID, CreateReviewRequest{JobID: active.ID, Rating: 5}, ErrInvalidState},
		{"outsider", outsiderID, CreateReviewRequest{JobID: job.ID, Rating: 5}, ErrAuthorization},
		{"rating too low", employerID, CreateReviewRequest{JobID: job.ID, Rating: 0}, ErrValidation},
		{"rating too high", employerID, CreateReviewRequest{JobID: job.ID, Rating: 6}, ErrValidation},
		{"comment too long", employerID, CreateReviewRequest{JobID: job.ID, Rating: 5, Comment: strings.Repeat("x", models.MaxCommentLength+1)}, ErrValidation},
		{"categories for the other role", employerID, CreateReviewRequest{JobID: job.ID, Rating: 5, CategoryRatings: map[string]int{
			"clear_requirements": 5, "professionalism": 5, "payment_reliability": 5,
		}}, ErrValidation},
		{"category out of range", studentID, CreateReviewRequest{JobID: job.ID, Rating: 5, CategoryRatings: map[string]int{
			"clear_requirements": 5, "professionalism": 5, "payment_reliability": 9,
		}}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := f.reviews.CreateReview(ctx, tt.actorID, &req)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateReview() error = %v, expected %v", err, tt.want)
			}
		})
	}

	var count int64
	f.db.Model(&models.Review{}).Count(&count)
	if count != 0 {
		t.Errorf("rejected submissions left %d rows behind", count)
	}
}

func TestCreateReview_CategoryRatingsStored(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)

	v, err := f.reviews.CreateReview(context.Background(), employerID, &CreateReviewRequest{
		JobID:  job.ID,
		Rating: 4,
		CategoryRatings: map[string]int{
			"quality_of_work": 5,
			"communication":   4,
			"timeliness":      3,
		},
	})
	if err != nil {
		t.Fatalf("CreateReview() error = %v", err)
	}

	stored := f.loadReview(t, v.ID)
	cr := stored.CategoryRatings
	if cr == nil || cr.Kind != models.CategoryEmployerRatedStudent || cr.EmployerRatedStudent.Timeliness != 3 {
		t.Errorf("stored category ratings = %+v", cr)
	}
}

func TestUpdateReview_WithinWindow(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)
	v := f.review(t, job.ID, employerID, 3)

	f.clock.Set(t0.Add(23 * time.Hour))
	comment := "Delivered early"
	updated, err := f.reviews.UpdateReview(context.Background(), v.ID, employerID, &UpdateReviewRequest{
		Rating:          intPtr(5),
		Comment:         &comment,
		CategoryRatings: map[string]int{"quality_of_work": 5, "communication": 5, "timeliness": 4},
	})
	if err != nil {
		t.Fatalf("UpdateReview() error = %v", err)
	}
	if updated.Rating != 5 || updated.Comment != comment {
		t.Errorf("updated = %+v", updated)
	}

	stored := f.loadReview(t, v.ID)
	if stored.CategoryRatings == nil || stored.CategoryRatings.EmployerRatedStudent.Timeliness != 4 {
		t.Errorf("category ratings not updated: %+v", stored.CategoryRatings)
	}
	if stored.IsVisible {
		t.Error("update must not reveal the review")
	}
}

func TestUpdateReview_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job := f.completedJob(t)
	f.clock.Set(t0.Add(time.Hour))
	hidden := f.review(t, job.ID, employerID, 3)

	revealedJob := f.completedJob(t)
	f.clock.Set(t0.Add(time.Hour))
	visible := f.review(t, revealedJob.ID, employerID, 4)
	f.review(t, revealedJob.ID, studentID, 4)

	tests := []struct {
		name    string
		at      time.Duration
		id      uint
		actorID uint
		want    error
	}{
		{"missing", 2 * time.Hour, 999, employerID, ErrNotFound},
		{"not the author", 2 * time.Hour, hidden.ID, studentID, ErrAuthorization},
		{"edit window expired", 26 * time.Hour, hidden.ID, employerID, ErrEditWindowExpired},
		{"already visible", 2 * time.Hour, visible.ID, employerID, ErrVisibilityViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Set(t0.Add(tt.at))
			_, err := f.reviews.UpdateReview(ctx, tt.id, tt.actorID, &UpdateReviewRequest{Rating: intPtr(1)})
			if !errors.Is(err, tt.want) {
				t.Errorf("UpdateReview() error = %v, expected %v", err, tt.want)
			}
			if err := f.reviews.DeleteReview(ctx, tt.id, tt.actorID); !errors.Is(err, tt.want) {
				t.Errorf("DeleteReview() error = %v, expected %v", err, tt.want)
			}
		})
	}

	if got := f.loadReview(t, hidden.ID).Rating; got != 3 {
		t.Errorf("rejected edits changed rating to %d", got)
	}
}

func TestUpdateReview_EditAfterOneDay(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)
	v := f.review(t, job.ID, employerID, 4)

	f.clock.Set(t0.Add(24 * time.Hour))
	if _, err := f.reviews.UpdateReview(context.Background(), v.ID, employerID, &UpdateReviewRequest{Rating: intPtr(3)}); err != nil {
		t.Fatalf("edit at exactly 24h should succeed, got %v", err)
	}

	f.clock.Set(t0.Add(25 * time.Hour))
	_, err := f.reviews.UpdateReview(context.Background(), v.ID, employerID, &UpdateReviewRequest{Rating: intPtr(2)})
	if !errors.Is(err, ErrEditWindowExpired) {
		t.Errorf("edit at 25h error = %v, expected ErrEditWindowExpired", err)
	}
}

func TestUpdateReview_VisibleAndExpired(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)
	f.clock.Set(t0.Add(time.Hour))
	v := f.review(t, job.ID, employerID, 4)
	f.review(t, job.ID, studentID, 4)

	f.clock.Set(t0.Add(48 * time.Hour))
	_, err := f.reviews.UpdateReview(context.Background(), v.ID, employerID, &UpdateReviewRequest{Rating: intPtr(1)})
	if !errors.Is(err, ErrVisibilityViolation) && !errors.Is(err, ErrEditWindowExpired) {
		t.Errorf("UpdateReview() error = %v, expected a visibility or edit window failure", err)
	}
}

func TestUpdateReview_NothingToUpdate(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)
	v := f.review(t, job.ID, employerID, 4)

	_, err := f.reviews.UpdateReview(context.Background(), v.ID, employerID, &UpdateReviewRequest{})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("UpdateReview() error = %v, expected ErrValidation", err)
	}
}

func TestDeleteReview_AllowsResubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)
	v := f.review(t, job.ID, studentID, 2)

	if err := f.reviews.DeleteReview(ctx, v.ID, studentID); err != nil {
		t.Fatalf("DeleteReview() error = %v", err)
	}
	if _, err := f.reviews.GetReview(ctx, v.ID, studentID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReview() after delete error = %v, expected ErrNotFound", err)
	}

	e, err := f.eligibility.CheckEligibility(ctx, job.ID, studentID)
	if err != nil || !e.Eligible {
		t.Errorf("CheckEligibility() after withdrawal = (%+v, %v)", e, err)
	}
	f.review(t, job.ID, studentID, 4)
}

func TestVisibility_Monotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)

	f.clock.Set(t0.Add(time.Hour))
	a := f.review(t, job.ID, employerID, 5)
	b := f.review(t, job.ID, studentID, 5)
	revealedAt := *f.loadReview(t, a.ID).VisibleAt

	f.clock.Set(t0.Add(20 * 24 * time.Hour))
	if revealed, err := f.gate.Evaluate(ctx, job.ID); err != nil || len(revealed) != 0 {
		t.Errorf("re-Evaluate() = (%v, %v), expected no change", revealed, err)
	}
	if _, err := f.sweep.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	f.reviews.UpdateReview(ctx, a.ID, employerID, &UpdateReviewRequest{Rating: intPtr(1)})
	f.reviews.DeleteReview(ctx, b.ID, studentID)

	for _, id := range []uint{a.ID, b.ID} {
		r := f.loadReview(t, id)
		if !r.IsVisible {
			t.Errorf("review %d became hidden again", id)
		}
		if r.VisibleAt == nil || !r.VisibleAt.Equal(revealedAt) {
			t.Errorf("review %d visible_at moved to %v", id, r.VisibleAt)
		}
	}
	if f.notifier.calls != 1 {
		t.Errorf("notifier called %d times, expected once", f.notifier.calls)
	}
}

func TestGetJobReviews_PendingVisibleOnlyToAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)

	f.clock.Set(t0.Add(time.Hour))
	own := f.review(t, job.ID, employerID, 4)

	tests := []struct {
		viewerID uint
		count    int
	}{
		{employerID, 1},
		{studentID, 0},
		{outsiderID, 0},
		{0, 0},
	}
	for _, tt := range tests {
		views, err := f.reviews.GetJobReviews(ctx, job.ID, tt.viewerID)
		if err != nil {
			t.Fatalf("GetJobReviews(viewer=%d) error = %v", tt.viewerID, err)
		}
		if len(views) != tt.count {
			t.Errorf("viewer %d sees %d reviews, expected %d", tt.viewerID, len(views), tt.count)
		}
	}

	if _, err := f.reviews.GetReview(ctx, own.ID, studentID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReview() of a hidden review by the reviewee: error = %v, expected ErrNotFound", err)
	}

	f.review(t, job.ID, studentID, 5)
	views, err := f.reviews.GetJobReviews(ctx, job.ID, outsiderID)
	if err != nil || len(views) != 2 {
		t.Errorf("after reveal outsider sees (%d, %v), expected 2 reviews", len(views), err)
	}

	if _, err := f.reviews.GetJobReviews(ctx, 999, employerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing job: error = %v, expected ErrNotFound", err)
	}
}

func TestGetJobReviews_AnonymousMasked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)

	anon, err := f.reviews.CreateReview(ctx, studentID, &CreateReviewRequest{JobID: job.ID, Rating: 2, Anonymous: true})
	if err != nil {
		t.Fatalf("CreateReview() error = %v", err)
	}
	f.review(t, job.ID, employerID, 4)

	byViewer := func(viewerID uint) ReviewView {
		views, err := f.reviews.GetJobReviews(ctx, job.ID, viewerID)
		if err != nil {
			t.Fatalf("GetJobReviews() error = %v", err)
		}
		for _, v := range views {
			if v.ReviewerRole == models.RoleStudent {
				return v
			}
		}
		t.Fatal("student review not returned")
		return ReviewView{}
	}

	if v := byViewer(employerID); v.ReviewerID != 0 || v.ReviewerName != AnonymousReviewerName {
		t.Errorf("employer sees reviewer (%d, %q), expected masked", v.ReviewerID, v.ReviewerName)
	}
	if v := byViewer(studentID); v.ReviewerID != studentID || v.ReviewerName != "Sam" {
		t.Errorf("author sees reviewer (%d, %q), expected own identity", v.ReviewerID, v.ReviewerName)
	}

	if stored := f.loadReview(t, anon.ID); stored.ReviewerID != studentID {
		t.Errorf("stored reviewer_id = %d, identity must be kept", stored.ReviewerID)
	}
}

func TestGetUserReviews_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, rating := range []int{5, 4, 3} {
		job := f.completedJob(t)
		f.clock.Set(t0.Add(time.Duration(i+1) * time.Hour))
		f.review(t, job.ID, employerID, rating)
		f.review(t, job.ID, studentID, 5)
	}
	hiddenJob := f.completedJob(t)
	f.review(t, hiddenJob.ID, employerID, 1)

	page, err := f.reviews.GetUserReviews(ctx, studentID, outsiderID, 2, 0)
	if err != nil {
		t.Fatalf("GetUserReviews() error = %v", err)
	}
	if len(page.Reviews) != 2 || page.Total != 3 || page.TotalReviews != 3 {
		t.Errorf("page = %d reviews, total %d", len(page.Reviews), page.Total)
	}
	if page.AverageRating != 4.0 {
		t.Errorf("AverageRating = %v, expected 4.0", page.AverageRating)
	}
	if page.Reviews[0].Rating != 3 {
		t.Errorf("newest reveal first: got rating %d, expected 3", page.Reviews[0].Rating)
	}

	rest, err := f.reviews.GetUserReviews(ctx, studentID, outsiderID, 2, 2)
	if err != nil || len(rest.Reviews) != 1 {
		t.Errorf("second page = (%v, %v), expected 1 review", rest, err)
	}

	defaults, _ := f.reviews.GetUserReviews(ctx, studentID, 0, 0, -5)
	if defaults.Limit != DefaultReviewPageSize || defaults.Offset != 0 {
		t.Errorf("defaults = limit %d offset %d", defaults.Limit, defaults.Offset)
	}
}
