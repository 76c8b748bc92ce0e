package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchedulerLock is a lease row that keeps a scheduled task on one instance
// at a time when several replicas share the database.
type SchedulerLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LockName  string    `gorm:"uniqueIndex:idx_lock_name_key;size:100;not null" json:"lock_name"`
	LockKey   string    `gorm:"uniqueIndex:idx_lock_name_key;size:100;not null" json:"lock_key"`
	LockedBy  string    `gorm:"size:100" json:"locked_by"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }

// AcquireSchedulerLock takes or renews the (name, key) lease for owner until
// now+ttl. It succeeds when the row is absent, expired, or already held by
// owner.
func AcquireSchedulerLock(db *gorm.DB, name, key, owner string, now time.Time, ttl time.Duration) (bool, error) {
	lock := SchedulerLock{
		LockName:  name,
		LockKey:   key,
		LockedBy:  owner,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	// Insert the row if missing; an existing row is left for the conditional update.
	inserted := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&lock)
	if inserted.Error != nil {
		return false, inserted.Error
	}
	if inserted.RowsAffected == 1 {
		return true, nil
	}

	result := db.Model(&SchedulerLock{}).
		Where("lock_name = ? AND lock_key = ?", name, key).
		Where("locked_by = ? OR expires_at < ?", owner, now).
		Updates(map[string]interface{}{
			"locked_by":  owner,
			"locked_at":  now,
			"expires_at": now.Add(ttl),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReleaseSchedulerLock drops the lease if owner still holds it.
func ReleaseSchedulerLock(db *gorm.DB, name, key, owner string) error {
	return db.Where("lock_name = ? AND lock_key = ? AND locked_by = ?", name, key, owner).
		Delete(&SchedulerLock{}).Error
}
