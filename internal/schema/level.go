package schema

// LevelDefinition 等级表的一行，运行期只读
type LevelDefinition struct {
	Level                int   `gorm:"primaryKey;autoIncrement:false" json:"level" yaml:"level"`
	RequiredExperience   int64 `gorm:"not null" json:"required_experience" yaml:"required_experience"`
	BaseRadius           int   `gorm:"not null" json:"base_radius" yaml:"base_radius"`                     // 直接参拜允许半径（米）
	BaseRemoteAllowance  int   `gorm:"not null" json:"base_remote_allowance" yaml:"base_remote_allowance"` // 每日遥拜次数
	AbilityPointsGranted int64 `gorm:"not null;default:0" json:"ability_points_granted" yaml:"ability_points_granted"`
}

func (LevelDefinition) TableName() string {
	return "level_definitions"
}
