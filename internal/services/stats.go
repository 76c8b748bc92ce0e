package services

import (
	"context"

	"github.com/huangang/campusgig/internal/models"
	"gorm.io/gorm"
)

const (
	BadgeTopRated          = "Top Rated"
	BadgeHighlyRecommended = "Highly Recommended"
	BadgeExcellenceAward   = "Excellence Award"
)

// ReviewStats summarizes the visible reviews a user received.
type ReviewStats struct {
	AverageRating   float64       `json:"average_rating"`
	TotalReviews    int64         `json:"total_reviews"`
	RatingBreakdown map[int]int64 `json:"rating_breakdown"`
	Badges          []string      `json:"badges"`
}

// ratingCounts holds per-rating counts of visible reviews.
type ratingCounts struct {
	Breakdown [models.MaxRating + 1]int64
	Total     int64
	Sum       int64
}

// AverageTenths is the mean times ten, rounded half up in integer
// arithmetic: 4.45 is 45, not 44.
func (c *ratingCounts) AverageTenths() int64 {
	if c.Total == 0 {
		return 0
	}
	return (c.Sum*20 + c.Total) / (2 * c.Total)
}

func (c *ratingCounts) Average() float64 {
	return float64(c.AverageTenths()) / 10
}

// Badges returns every earned badge in display order.
func (c *ratingCounts) Badges() []string {
	tenths := c.AverageTenths()
	badges := []string{}
	if tenths >= 45 && c.Total >= 2 {
		badges = append(badges, BadgeTopRated)
	}
	if tenths >= 40 && c.Total >= 3 {
		badges = append(badges, BadgeHighlyRecommended)
	}
	// no minimum review count, unlike the other two
	if c.Breakdown[5] >= 2 {
		badges = append(badges, BadgeExcellenceAward)
	}
	return badges
}

func (c *ratingCounts) add(rating int, count int64) {
	if !models.ValidRating(rating) {
		return
	}
	c.Breakdown[rating] += count
	c.Total += count
	c.Sum += int64(rating) * count
}

func ratingSummary(db *gorm.DB, userID uint) (*ratingCounts, error) {
	var rows []struct {
		Rating int
		Count  int64
	}
	if err := db.Model(&models.Review{}).
		Select("rating, COUNT(*) AS count").
		Where("reviewee_id = ? AND is_visible = ?", userID, true).
		Group("rating").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := &ratingCounts{}
	for _, row := range rows {
		counts.add(row.Rating, row.Count)
	}
	return counts, nil
}

type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// GetUserReviewStats counts only visible reviews, so hidden ones never leak
// through the aggregate.
func (s *StatsService) GetUserReviewStats(ctx context.Context, userID uint) (*ReviewStats, error) {
	counts, err := ratingSummary(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	breakdown := make(map[int]int64, models.MaxRating)
	for r := models.MinRating; r <= models.MaxRating; r++ {
		breakdown[r] = counts.Breakdown[r]
	}

	return &ReviewStats{
		AverageRating:   counts.Average(),
		TotalReviews:    counts.Total,
		RatingBreakdown: breakdown,
		Badges:          counts.Badges(),
	}, nil
}
