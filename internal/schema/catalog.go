package schema

import "time"

// CatalogEntry 用户到访过的对象名录，幂等 upsert，从不删除
type CatalogEntry struct {
	ID            int64       `gorm:"primaryKey;autoIncrement"`
	UserID        int64       `gorm:"not null;uniqueIndex:uniq_catalog,priority:1"`
	SubjectType   SubjectType `gorm:"size:16;not null;uniqueIndex:uniq_catalog,priority:2"`
	SubjectID     int64       `gorm:"not null;uniqueIndex:uniq_catalog,priority:3"`
	FirstSeenAt   time.Time   `gorm:"not null"`
	LastVisitedAt time.Time   `gorm:"not null;index"`
}

func (CatalogEntry) TableName() string {
	return "catalog_entries"
}
