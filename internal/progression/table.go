// Package progression 经验与等级换算：纯函数，无 I/O。
package progression

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yuqie6/Sanpai/internal/schema"
)

// ErrConfiguration 等级表配置错误（缺行、非递增等），对当前操作是致命的
var ErrConfiguration = errors.New("等级表配置错误")

// ErrNegativeDelta 经验增量为负
var ErrNegativeDelta = errors.New("经验增量不能为负")

// Table 校验过的等级表，创建后只读，可并发使用
type Table struct {
	rows []schema.LevelDefinition // rows[i].Level == i+1
}

// NewTable 校验并构建等级表
// 要求：等级从 1 连续递增，1 级所需经验为 0，所需经验严格递增，其余数值非负。
func NewTable(defs []schema.LevelDefinition) (*Table, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: 等级表为空", ErrConfiguration)
	}
	rows := make([]schema.LevelDefinition, len(defs))
	copy(rows, defs)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Level < rows[j].Level })

	for i, d := range rows {
		if d.Level != i+1 {
			return nil, fmt.Errorf("%w: 缺少等级 %d 的定义", ErrConfiguration, i+1)
		}
		if i == 0 && d.RequiredExperience != 0 {
			return nil, fmt.Errorf("%w: 1 级所需经验必须为 0，实际 %d", ErrConfiguration, d.RequiredExperience)
		}
		if i > 0 && d.RequiredExperience <= rows[i-1].RequiredExperience {
			return nil, fmt.Errorf("%w: 等级 %d 所需经验 %d 未大于上一级 %d",
				ErrConfiguration, d.Level, d.RequiredExperience, rows[i-1].RequiredExperience)
		}
		if d.BaseRadius < 0 || d.BaseRemoteAllowance < 0 || d.AbilityPointsGranted < 0 {
			return nil, fmt.Errorf("%w: 等级 %d 存在负值", ErrConfiguration, d.Level)
		}
	}
	return &Table{rows: rows}, nil
}

// MaxLevel 最高等级
func (t *Table) MaxLevel() int {
	return len(t.rows)
}

// Definition 返回指定等级的定义；越界视为配置错误
func (t *Table) Definition(level int) (schema.LevelDefinition, error) {
	if t == nil || level < 1 || level > len(t.rows) {
		return schema.LevelDefinition{}, fmt.Errorf("%w: 缺少等级 %d 的定义", ErrConfiguration, level)
	}
	return t.rows[level-1], nil
}

// Definitions 返回等级表副本
func (t *Table) Definitions() []schema.LevelDefinition {
	out := make([]schema.LevelDefinition, len(t.rows))
	copy(out, t.rows)
	return out
}

// LevelFor 满足 required <= experience 的最大等级，二分查找
func (t *Table) LevelFor(experience int64) int {
	// 第一个 required > experience 的下标即为等级
	n := sort.Search(len(t.rows), func(i int) bool {
		return t.rows[i].RequiredExperience > experience
	})
	if n < 1 {
		return 1
	}
	return n
}

// NextRequirement 升到下一级所需的累计经验；已满级返回 false
func (t *Table) NextRequirement(level int) (int64, bool) {
	if level < 1 || level >= len(t.rows) {
		return 0, false
	}
	return t.rows[level].RequiredExperience, true
}
