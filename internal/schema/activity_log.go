package schema

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog 动态流条目，供日志流读取端展示
type ActivityLog struct {
	ID        int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64             `gorm:"not null;index" json:"user_id"`
	Kind      string            `gorm:"size:32;not null" json:"kind"` // visit/remote/title/level_up
	Message   string            `gorm:"type:text;not null" json:"message"`
	Meta      datatypes.JSONMap `json:"meta,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index" json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}
