package schema

import "time"

// VisitKind 参拜方式
type VisitKind string

const (
	VisitDirect VisitKind = "direct" // 现场参拜（地理围栏）
	VisitRemote VisitKind = "remote" // 遥拜（每日限次）
)

// Valid 是否为已知的参拜方式
func (k VisitKind) Valid() bool {
	return k == VisitDirect || k == VisitRemote
}

// VisitEvent 参拜记录，只追加不修改
type VisitEvent struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index:idx_visit_user_kind_time,priority:1" json:"user_id"`
	SiteID    int64     `gorm:"not null;index" json:"site_id"`
	Kind      VisitKind `gorm:"size:16;not null;index:idx_visit_user_kind_time,priority:2" json:"kind"`
	CreatedAt time.Time `gorm:"not null;index:idx_visit_user_kind_time,priority:3" json:"created_at"`
}

func (VisitEvent) TableName() string {
	return "visit_events"
}
