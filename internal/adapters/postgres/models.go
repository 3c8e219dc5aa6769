package postgres

import (
	"time"
)

type loginAttemptModel struct {
	ID            int64     `gorm:"column:id;primaryKey"`
	LoginID       string    `gorm:"column:login_id"`
	AttemptAt     time.Time `gorm:"column:attempt_at"`
	IPAddress     *string   `gorm:"column:ip_address"`
	Status        string    `gorm:"column:status"`
	FailureReason string    `gorm:"column:failure_reason"`
	UserAgent     string    `gorm:"column:user_agent"`
}

func (loginAttemptModel) TableName() string { return "login_attempts" }
