package progression

import "fmt"

// State 参与计算的用户进度
type State struct {
	Experience    int64
	AbilityPoints int64
}

// Result 一次加经验的结果
type Result struct {
	Experience          int64
	OldLevel            int
	NewLevel            int
	LeveledUp           bool
	AbilityPointsGained int64
	AbilityPoints       int64
}

// Apply 为用户增加经验并结算升级奖励
// 跨越多级时，(old, new] 区间内每一级的能力点都会累加。满级后经验继续累计，但等级不再变化。
func (t *Table) Apply(st State, delta int64) (Result, error) {
	if delta < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrNegativeDelta, delta)
	}

	oldLevel := t.LevelFor(st.Experience)
	exp := st.Experience + delta
	newLevel := t.LevelFor(exp)

	res := Result{
		Experience:    exp,
		OldLevel:      oldLevel,
		NewLevel:      newLevel,
		AbilityPoints: st.AbilityPoints,
	}
	if newLevel <= oldLevel {
		return res, nil
	}

	var gained int64
	for lv := oldLevel + 1; lv <= newLevel; lv++ {
		def, err := t.Definition(lv)
		if err != nil {
			return Result{}, err
		}
		gained += def.AbilityPointsGranted
	}
	res.LeveledUp = true
	res.AbilityPointsGained = gained
	res.AbilityPoints += gained
	return res, nil
}
