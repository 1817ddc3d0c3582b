package schema

import "time"

// EffectKind 能力效果类型
type EffectKind string

const (
	EffectRadiusBoost EffectKind = "radius_boost" // 扩大直接参拜半径（米）
	EffectRemoteBoost EffectKind = "remote_boost" // 增加每日遥拜次数
)

// UserAbility 用户已解锁的能力（能力子系统维护）
type UserAbility struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	UserID      int64      `gorm:"not null;index"`
	AbilityCode string     `gorm:"size:64;not null"`
	EffectKind  EffectKind `gorm:"size:32;not null"`
	Magnitude   int        `gorm:"not null"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
}

func (UserAbility) TableName() string {
	return "user_abilities"
}

const (
	EntitlementRangeMultiplier = "range_multiplier"
	EntitlementWorshipBoost    = "worship_boost"
)

// UserEntitlement 限时权益（订阅子系统维护）
type UserEntitlement struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"not null;index"`
	Kind      string    `gorm:"size:32;not null"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (UserEntitlement) TableName() string {
	return "user_entitlements"
}
