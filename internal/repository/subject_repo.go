package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubjectRepository 地点与祭神（主题实体）仓储
type SubjectRepository struct {
	db *gorm.DB
}

// NewSubjectRepository 创建仓储
func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// CreateSite 创建地点
func (r *SubjectRepository) CreateSite(ctx context.Context, site *schema.Site) error {
	if err := r.db.WithContext(ctx).Create(site).Error; err != nil {
		return fmt.Errorf("创建地点失败: %w", err)
	}
	return nil
}

// CreateAffinityGroup 创建主题实体
func (r *SubjectRepository) CreateAffinityGroup(ctx context.Context, group *schema.AffinityGroup) error {
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("创建主题实体失败: %w", err)
	}
	return nil
}

// Link 关联地点与主题实体（幂等）
func (r *SubjectRepository) Link(ctx context.Context, siteID, groupID int64) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&schema.SiteAffinity{SiteID: siteID, AffinityGroupID: groupID}).Error
	if err != nil {
		return fmt.Errorf("关联地点失败: %w", err)
	}
	return nil
}

// GetSite 按 ID 获取地点；不存在返回 nil, nil
func (r *SubjectRepository) GetSite(ctx context.Context, id int64) (*schema.Site, error) {
	var site schema.Site
	err := r.db.WithContext(ctx).First(&site, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询地点失败: %w", err)
	}
	return &site, nil
}

// AffinityGroupsForSite 地点关联的全部主题实体，按 ID 升序
func (r *SubjectRepository) AffinityGroupsForSite(ctx context.Context, siteID int64) ([]schema.AffinityGroup, error) {
	var groups []schema.AffinityGroup
	err := r.db.WithContext(ctx).
		Joins("JOIN site_affinities sa ON sa.affinity_group_id = affinity_groups.id").
		Where("sa.site_id = ?", siteID).
		Order("affinity_groups.id ASC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("查询地点关联失败: %w", err)
	}
	return groups, nil
}

// Names 批量获取对象名称
func (r *SubjectRepository) Names(ctx context.Context, st schema.SubjectType, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	type row struct {
		ID   int64
		Name string
	}
	var rows []row
	var model any
	switch st {
	case schema.SubjectSite:
		model = &schema.Site{}
	case schema.SubjectAffinity:
		model = &schema.AffinityGroup{}
	default:
		return nil, fmt.Errorf("未知对象类型: %q", st)
	}
	err := r.db.WithContext(ctx).Model(model).Select("id, name").Where("id IN ?", ids).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询对象名称失败: %w", err)
	}
	for _, it := range rows {
		out[it.ID] = it.Name
	}
	return out, nil
}

// EnsureSite 按名称查找地点，不存在时创建
func (r *SubjectRepository) EnsureSite(ctx context.Context, site *schema.Site) (*schema.Site, error) {
	var out schema.Site
	err := r.db.WithContext(ctx).
		Where(schema.Site{Name: site.Name}).
		Attrs(schema.Site{Latitude: site.Latitude, Longitude: site.Longitude}).
		FirstOrCreate(&out).Error
	if err != nil {
		return nil, fmt.Errorf("写入地点失败: %w", err)
	}
	return &out, nil
}

// EnsureAffinityGroup 按名称查找主题实体，不存在时创建
func (r *SubjectRepository) EnsureAffinityGroup(ctx context.Context, name string) (*schema.AffinityGroup, error) {
	var out schema.AffinityGroup
	err := r.db.WithContext(ctx).Where(schema.AffinityGroup{Name: name}).FirstOrCreate(&out).Error
	if err != nil {
		return nil, fmt.Errorf("写入主题实体失败: %w", err)
	}
	return &out, nil
}
