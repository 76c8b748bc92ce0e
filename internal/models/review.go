package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	MinRating        = 1
	MaxRating        = 5
	MaxCommentLength = 2000
)

type CategoryKind string

const (
	CategoryStudentRatedEmployer CategoryKind = "student_rated_employer"
	CategoryEmployerRatedStudent CategoryKind = "employer_rated_student"
)

// StudentRatedEmployer holds the sub-ratings a student gives an employer.
type StudentRatedEmployer struct {
	ClearRequirements  int `json:"clear_requirements"`
	Professionalism    int `json:"professionalism"`
	PaymentReliability int `json:"payment_reliability"`
}

// EmployerRatedStudent holds the sub-ratings an employer gives a student.
type EmployerRatedStudent struct {
	QualityOfWork int `json:"quality_of_work"`
	Communication int `json:"communication"`
	Timeliness    int `json:"timeliness"`
}

// CategoryRatings is a tagged variant: exactly one of the two payloads is set,
// and Kind names which. The variant is picked from the reviewer's role on the
// job, see BuildCategoryRatings.
type CategoryRatings struct {
	Kind                 CategoryKind          `json:"kind"`
	StudentRatedEmployer *StudentRatedEmployer `json:"student_rated_employer,omitempty"`
	EmployerRatedStudent *EmployerRatedStudent `json:"employer_rated_student,omitempty"`
}

var categoryKeys = map[CategoryKind][]string{
	CategoryStudentRatedEmployer: {"clear_requirements", "professionalism", "payment_reliability"},
	CategoryEmployerRatedStudent: {"quality_of_work", "communication", "timeliness"},
}

// CategoryKindForRole maps a reviewer role to its category schema.
func CategoryKindForRole(reviewerRole string) (CategoryKind, bool) {
	switch reviewerRole {
	case RoleStudent:
		return CategoryStudentRatedEmployer, true
	case RoleEmployer:
		return CategoryEmployerRatedStudent, true
	}
	return "", false
}

// BuildCategoryRatings constructs the variant for reviewerRole from raw
// sub-ratings. Every key of the role's schema is required, unknown keys are
// rejected, and each value must be within [MinRating, MaxRating]. A nil or
// empty map yields nil: category ratings are optional.
func BuildCategoryRatings(reviewerRole string, raw map[string]int) (*CategoryRatings, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	kind, ok := CategoryKindForRole(reviewerRole)
	if !ok {
		return nil, fmt.Errorf("unknown reviewer role %q", reviewerRole)
	}

	expected := categoryKeys[kind]
	var unknown []string
	for key := range raw {
		if !containsString(expected, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("category ratings %s not allowed for %s reviewers (expected %s)",
			strings.Join(unknown, ", "), reviewerRole, strings.Join(expected, ", "))
	}
	for _, key := range expected {
		v, ok := raw[key]
		if !ok {
			return nil, fmt.Errorf("category rating %s is required", key)
		}
		if v < MinRating || v > MaxRating {
			return nil, fmt.Errorf("category rating %s must be between %d and %d", key, MinRating, MaxRating)
		}
	}

	cr := &CategoryRatings{Kind: kind}
	switch kind {
	case CategoryStudentRatedEmployer:
		cr.StudentRatedEmployer = &StudentRatedEmployer{
			ClearRequirements:  raw["clear_requirements"],
			Professionalism:    raw["professionalism"],
			PaymentReliability: raw["payment_reliability"],
		}
	case CategoryEmployerRatedStudent:
		cr.EmployerRatedStudent = &EmployerRatedStudent{
			QualityOfWork: raw["quality_of_work"],
			Communication: raw["communication"],
			Timeliness:    raw["timeliness"],
		}
	}
	return cr, nil
}

// MatchesRole reports whether the stored variant is the one reviewerRole
// produces, with exactly one payload set.
func (c *CategoryRatings) MatchesRole(reviewerRole string) bool {
	kind, ok := CategoryKindForRole(reviewerRole)
	if !ok || c.Kind != kind {
		return false
	}
	switch kind {
	case CategoryStudentRatedEmployer:
		return c.StudentRatedEmployer != nil && c.EmployerRatedStudent == nil
	case CategoryEmployerRatedStudent:
		return c.EmployerRatedStudent != nil && c.StudentRatedEmployer == nil
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Review is one party's rating of the other party of a job. It stays
// hidden until both parties reviewed or the review window closed.
type Review struct {
	ID              uint             `gorm:"primaryKey" json:"id"`
	JobID           uint             `gorm:"uniqueIndex:idx_review_job_reviewer;not null" json:"job_id"`
	ReviewerID      uint             `gorm:"uniqueIndex:idx_review_job_reviewer;not null" json:"reviewer_id"`
	RevieweeID      uint             `gorm:"index;not null" json:"reviewee_id"`
	ReviewerRole    string           `gorm:"size:20;not null" json:"reviewer_role"` // student, employer
	Rating          int              `gorm:"not null" json:"rating"`
	Comment         string           `gorm:"type:text" json:"comment"`
	CategoryRatings *CategoryRatings `gorm:"serializer:json;type:text" json:"category_ratings,omitempty"`
	Anonymous       bool             `gorm:"default:false" json:"anonymous"`
	IsVisible       bool             `gorm:"index;default:false" json:"is_visible"` // never reset once true
	VisibleAt       *time.Time       `json:"visible_at"`
	Reviewer        *User            `gorm:"foreignKey:ReviewerID" json:"-"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (Review) TableName() string { return "reviews" }

// ValidRating reports whether r is within the allowed rating range.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
