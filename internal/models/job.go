package models

import "time"

type JobStatus string

const (
	JobStatusDraft         JobStatus = "draft"
	JobStatusPosted        JobStatus = "posted"
	JobStatusHired         JobStatus = "hired"
	JobStatusInProgress    JobStatus = "in_progress"
	JobStatusSubmitted     JobStatus = "submitted"
	JobStatusReviewPending JobStatus = "review_pending"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusArchived      JobStatus = "archived"
	JobStatusDisputed      JobStatus = "disputed"
)

// jobTransitions lists the allowed next states for each status.
// archived and disputed are terminal.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusDraft:         {JobStatusPosted},
	JobStatusPosted:        {JobStatusHired},
	JobStatusHired:         {JobStatusInProgress},
	JobStatusInProgress:    {JobStatusSubmitted, JobStatusReviewPending, JobStatusDisputed},
	JobStatusSubmitted:     {JobStatusReviewPending, JobStatusDisputed},
	JobStatusReviewPending: {JobStatusCompleted, JobStatusDisputed},
	JobStatusCompleted:     {JobStatusArchived},
}

// CompletableStatuses are the statuses from which a party may complete a job.
var CompletableStatuses = []JobStatus{JobStatusInProgress, JobStatusSubmitted}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusDraft, JobStatusPosted, JobStatusHired, JobStatusInProgress,
		JobStatusSubmitted, JobStatusReviewPending, JobStatusCompleted,
		JobStatusArchived, JobStatusDisputed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the edge s -> to exists.
func (s JobStatus) CanTransitionTo(to JobStatus) bool {
	for _, next := range jobTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AcceptsReviews reports whether reviews may be submitted in this status.
func (s JobStatus) AcceptsReviews() bool {
	return s == JobStatusReviewPending || s == JobStatusCompleted
}

// Job is a gig between one employer and, once hired, one student.
type Job struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Title          string     `gorm:"size:200;not null" json:"title"`
	EmployerID     uint       `gorm:"index;not null" json:"employer_id"`
	HiredStudentID *uint      `gorm:"index" json:"hired_student_id"`
	Status         JobStatus  `gorm:"size:30;index;not null;default:draft" json:"status"`
	CompletedAt    *time.Time `json:"completed_at"`
	ReviewDueDate  *time.Time `gorm:"index" json:"review_due_date"` // set together with CompletedAt
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Job) TableName() string { return "jobs" }

// IsParty reports whether userID is the employer or the hired student.
func (j *Job) IsParty(userID uint) bool {
	if userID == 0 {
		return false
	}
	if j.EmployerID == userID {
		return true
	}
	return j.HiredStudentID != nil && *j.HiredStudentID == userID
}

// Counterpart returns the other party of the job for userID and the
// reviewer role userID holds. ok is false when userID is not a party.
func (j *Job) Counterpart(userID uint) (revieweeID uint, reviewerRole string, ok bool) {
	if j.HiredStudentID == nil || !j.IsParty(userID) {
		return 0, "", false
	}
	if userID == j.EmployerID {
		return *j.HiredStudentID, RoleEmployer, true
	}
	return j.EmployerID, RoleStudent, true
}

// ReviewDeadlinePassed reports whether the review window closed before now.
func (j *Job) ReviewDeadlinePassed(now time.Time) bool {
	return j.CompletedAt != nil && j.ReviewDueDate != nil && now.After(*j.ReviewDueDate)
}
