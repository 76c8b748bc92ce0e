package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huangang/campusgig/internal/models"
)

func TestCompleteJob_OpensReviewWindow(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, models.JobStatusSubmitted)

	completed, err := f.jobs.CompleteJob(context.Background(), job.ID, studentID)
	if err != nil {
		t.Fatalf("CompleteJob() error = %v", err)
	}
	if completed.Status != models.JobStatusReviewPending {
		t.Errorf("Status = %q, expected review_pending", completed.Status)
	}
	if completed.CompletedAt == nil || !completed.CompletedAt.Equal(t0) {
		t.Errorf("CompletedAt = %v, expected %v", completed.CompletedAt, t0)
	}
	due := t0.Add(14 * 24 * time.Hour)
	if completed.ReviewDueDate == nil || !completed.ReviewDueDate.Equal(due) {
		t.Errorf("ReviewDueDate = %v, expected %v", completed.ReviewDueDate, due)
	}
}

func TestCompleteJob_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	posted := f.seedJob(t, models.JobStatusPosted)
	active := f.seedJob(t, models.JobStatusInProgress)

	tests := []struct {
		name    string
		jobID   uint
		actorID uint
		want    error
	}{
		{"missing job", 999, employerID, ErrNotFound},
		{"outsider", active.ID, outsiderID, ErrAuthorization},
		{"not started", posted.ID, employerID, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.jobs.CompleteJob(ctx, tt.jobID, tt.actorID)
			if !errors.Is(err, tt.want) {
				t.Errorf("CompleteJob() error = %v, expected %v", err, tt.want)
			}
		})
	}
}

func TestCompleteJob_SecondCallKeepsDeadline(t *testing.T) {
	f := newFixture(t)
	job := f.completedJob(t)

	f.clock.Set(t0.Add(3 * time.Hour))
	_, err := f.jobs.CompleteJob(context.Background(), job.ID, studentID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second CompleteJob() error = %v, expected ErrInvalidState", err)
	}

	stored := f.loadJob(t, job.ID)
	if !stored.CompletedAt.Equal(t0) {
		t.Errorf("CompletedAt moved to %v", stored.CompletedAt)
	}
}

func TestTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := studentID

	draft := &models.Job{Title: "Flyers", EmployerID: employerID, Status: models.JobStatusDraft}
	if err := f.db.Create(draft).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	job, err := f.jobs.Transition(ctx, draft.ID, employerID, &TransitionRequest{Status: models.JobStatusPosted})
	if err != nil || job.Status != models.JobStatusPosted {
		t.Fatalf("Transition(posted) = (%v, %v)", job, err)
	}

	if _, err := f.jobs.Transition(ctx, draft.ID, employerID, &TransitionRequest{Status: models.JobStatusHired}); !errors.Is(err, ErrValidation) {
		t.Errorf("hire without student: error = %v, expected ErrValidation", err)
	}

	job, err = f.jobs.Transition(ctx, draft.ID, employerID, &TransitionRequest{Status: models.JobStatusHired, StudentID: &student})
	if err != nil {
		t.Fatalf("Transition(hired) error = %v", err)
	}
	if job.HiredStudentID == nil || *job.HiredStudentID != studentID {
		t.Errorf("HiredStudentID = %v, expected %d", job.HiredStudentID, studentID)
	}

	if _, err := f.jobs.Transition(ctx, draft.ID, studentID, &TransitionRequest{Status: models.JobStatusInProgress}); !errors.Is(err, ErrAuthorization) {
		t.Errorf("student start: error = %v, expected ErrAuthorization", err)
	}
	if _, err := f.jobs.Transition(ctx, draft.ID, employerID, &TransitionRequest{Status: models.JobStatusArchived}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("hired -> archived: error = %v, expected ErrInvalidState", err)
	}
	if _, err := f.jobs.Transition(ctx, draft.ID, employerID, &TransitionRequest{Status: models.JobStatusInProgress}); err != nil {
		t.Fatalf("Transition(in_progress) error = %v", err)
	}
	if _, err := f.jobs.Transition(ctx, draft.ID, employerID, &TransitionRequest{Status: models.JobStatusReviewPending}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("review_pending via Transition: error = %v, expected ErrInvalidState", err)
	}

	job, err = f.jobs.Transition(ctx, draft.ID, studentID, &TransitionRequest{Status: models.JobStatusDisputed})
	if err != nil || job.Status != models.JobStatusDisputed {
		t.Errorf("student dispute = (%v, %v)", job, err)
	}
}

func TestTransition_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	job := f.seedJob(t, models.JobStatusInProgress)

	_, err := f.jobs.Transition(context.Background(), job.ID, employerID, &TransitionRequest{Status: "paused"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error = %v, expected ErrValidation", err)
	}
}

func TestFinalizeReviewWindow_WaitsForDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.completedJob(t)

	finalized, err := f.jobs.FinalizeReviewWindow(ctx, job.ID)
	if err != nil || finalized {
		t.Fatalf("FinalizeReviewWindow() with window open = (%v, %v), expected (false, nil)", finalized, err)
	}

	f.clock.Set(t0.Add(15 * 24 * time.Hour))
	finalized, err = f.jobs.FinalizeReviewWindow(ctx, job.ID)
	if err != nil || !finalized {
		t.Fatalf("FinalizeReviewWindow() after deadline = (%v, %v), expected (true, nil)", finalized, err)
	}
	if got := f.loadJob(t, job.ID).Status; got != models.JobStatusCompleted {
		t.Errorf("Status = %q, expected completed", got)
	}

	// completed still accepts a late review
	e, err := f.eligibility.CheckEligibility(ctx, job.ID, studentID)
	if err != nil || !e.Eligible {
		t.Errorf("CheckEligibility() on completed job = (%+v, %v)", e, err)
	}
}

func TestCheckEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.seedJob(t, models.JobStatusInProgress)
	done := f.completedJob(t)
	f.review(t, done.ID, employerID, 4)

	tests := []struct {
		name     string
		jobID    uint
		userID   uint
		eligible bool
		reason   string
	}{
		{"not completed", active.ID, employerID, false, ReasonJobNotCompleted},
		{"outsider", done.ID, outsiderID, false, ReasonNotAParty},
		{"already reviewed", done.ID, employerID, false, ReasonAlreadyReviewed},
		{"eligible", done.ID, studentID, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := f.eligibility.CheckEligibility(ctx, tt.jobID, tt.userID)
			if err != nil {
				t.Fatalf("CheckEligibility() error = %v", err)
			}
			if e.Eligible != tt.eligible || e.Reason != tt.reason {
				t.Errorf("CheckEligibility() = %+v, expected {%v %q}", e, tt.eligible, tt.reason)
			}
		})
	}

	if _, err := f.eligibility.CheckEligibility(ctx, 999, employerID); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing job: error = %v, expected ErrNotFound", err)
	}
}
