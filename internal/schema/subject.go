package schema

import "time"

// Site 可参拜的地点（神社等）
type Site struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Latitude  float64   `gorm:"not null" json:"latitude"`
	Longitude float64   `gorm:"not null" json:"longitude"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Site) TableName() string {
	return "sites"
}

// AffinityGroup 与地点多对多关联的主题实体（如祭神）
type AffinityGroup struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AffinityGroup) TableName() string {
	return "affinity_groups"
}

// SiteAffinity 地点与主题实体的关联
type SiteAffinity struct {
	SiteID          int64 `gorm:"primaryKey;autoIncrement:false"`
	AffinityGroupID int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (SiteAffinity) TableName() string {
	return "site_affinities"
}
