package schema

import "time"

// User 参拜者
// 经验值只增不减；等级由等级表推导后回写，便于排行与展示查询。
type User struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"size:100;not null" json:"name"`
	Experience    int64     `gorm:"not null;default:0" json:"experience"`
	Level         int       `gorm:"not null;default:1" json:"level"`
	AbilityPoints int64     `gorm:"not null;default:0" json:"ability_points"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
