package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yuqie6/Sanpai/internal/schema"
	"gorm.io/datatypes"
)

// titleVars 称号模板变量
// subject_type、subject_id 与周期键组成唯一键，不同周期的称号各自保留，同一周期重新收割只刷新名次。
type titleVars struct {
	SubjectType schema.SubjectType
	SubjectID   int64
	SubjectName string
	Rank        int
	Period      Period
}

func rankLabel(rank int) string {
	return fmt.Sprintf("第%d名", rank)
}

// identityKey 同一用户同一模板下区分对象与周期的键，如 site:1:2026-10
func (v titleVars) identityKey() string {
	return string(v.SubjectType) + ":" + strconv.FormatInt(v.SubjectID, 10) + ":" + v.Period.Key
}

func (v titleVars) render(display string) string {
	return strings.NewReplacer(
		"{subject_name}", v.SubjectName,
		"{subject_id}", strconv.FormatInt(v.SubjectID, 10),
		"{rank}", strconv.Itoa(v.Rank),
		"{rank_label}", rankLabel(v.Rank),
		"{period}", v.Period.Label,
	).Replace(display)
}

func (v titleVars) jsonMap() datatypes.JSONMap {
	return datatypes.JSONMap{
		"subject_type": string(v.SubjectType),
		"subject_id":   v.SubjectID,
		"subject_name": v.SubjectName,
		"rank":         v.Rank,
		"period":       v.Period.Key,
	}
}
