// Package seed 等级表、称号模板与演示数据的 YAML 种子
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/yuqie6/Sanpai/internal/progression"
	"github.com/yuqie6/Sanpai/internal/repository"
	"github.com/yuqie6/Sanpai/internal/schema"
	"go.yaml.in/yaml/v3"
)

//go:embed defaults.yaml
var defaultSeed []byte

// SiteSeed 演示用地点及其关联的祭神名称
type SiteSeed struct {
	Name       string   `yaml:"name"`
	Latitude   float64  `yaml:"latitude"`
	Longitude  float64  `yaml:"longitude"`
	Affinities []string `yaml:"affinities"`
}

// UserSeed 演示用户
type UserSeed struct {
	Name string `yaml:"name"`
}

// File 种子文件结构
type File struct {
	Levels []schema.LevelDefinition `yaml:"levels"`
	Titles []schema.TitleTemplate   `yaml:"titles"`
	Sites  []SiteSeed               `yaml:"sites"`
	Users  []UserSeed               `yaml:"users"`
}

// Report Apply 写入的数量
type Report struct {
	Levels int
	Titles int
	Sites  int
	Users  int
}

// Load 读取种子；path 为空时使用内置默认值
func Load(path string) (*File, error) {
	data := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取种子文件失败: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse 解析并校验种子内容
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("解析种子失败: %w", err)
	}
	if len(f.Levels) > 0 {
		if _, err := progression.NewTable(f.Levels); err != nil {
			return nil, err
		}
	}
	for _, t := range f.Titles {
		if t.Code == "" {
			return nil, fmt.Errorf("称号模板缺少 code")
		}
		if !t.PeriodKind.Ranked() {
			return nil, fmt.Errorf("称号模板 %s 的周期无效: %q", t.Code, t.PeriodKind)
		}
		if !t.SubjectType.Valid() {
			return nil, fmt.Errorf("称号模板 %s 的对象类型无效: %q", t.Code, t.SubjectType)
		}
		if t.RewardExp < 0 {
			return nil, fmt.Errorf("称号模板 %s 的经验奖励为负", t.Code)
		}
	}
	return &f, nil
}

// Apply 在一个事务内写入种子，重复执行结果不变
func Apply(ctx context.Context, store *repository.Store, f *File) (Report, error) {
	var rep Report
	err := store.InTx(ctx, func(tx *repository.Store) error {
		if len(f.Levels) > 0 {
			if err := tx.Levels.UpsertBatch(ctx, f.Levels); err != nil {
				return err
			}
			rep.Levels = len(f.Levels)
		}
		if len(f.Titles) > 0 {
			if err := tx.Titles.UpsertTemplates(ctx, f.Titles); err != nil {
				return err
			}
			rep.Titles = len(f.Titles)
		}
		for _, s := range f.Sites {
			site, err := tx.Subjects.EnsureSite(ctx, &schema.Site{Name: s.Name, Latitude: s.Latitude, Longitude: s.Longitude})
			if err != nil {
				return err
			}
			for _, name := range s.Affinities {
				group, err := tx.Subjects.EnsureAffinityGroup(ctx, name)
				if err != nil {
					return err
				}
				if err := tx.Subjects.Link(ctx, site.ID, group.ID); err != nil {
					return err
				}
			}
			rep.Sites++
		}
		for _, u := range f.Users {
			if _, err := tx.Users.EnsureByName(ctx, u.Name); err != nil {
				return err
			}
			rep.Users++
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("写入种子失败: %w", err)
	}
	slog.Info("种子已写入", "levels", rep.Levels, "titles", rep.Titles, "sites", rep.Sites, "users", rep.Users)
	return rep, nil
}

// EnsureLevels 等级表为空时写入种子，返回当前等级表
func EnsureLevels(ctx context.Context, store *repository.Store, path string) (*progression.Table, error) {
	n, err := store.Levels.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		f, err := Load(path)
		if err != nil {
			return nil, err
		}
		if _, err := Apply(ctx, store, f); err != nil {
			return nil, err
		}
	}
	defs, err := store.Levels.List(ctx)
	if err != nil {
		return nil, err
	}
	return progression.NewTable(defs)
}
