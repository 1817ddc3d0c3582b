package service

import (
	"math"

	"github.com/yuqie6/Sanpai/internal/schema"
)

const earthRadiusMeters = 6371000.0

// Location 经纬度（度）
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180 &&
		!math.IsNaN(l.Latitude) && !math.IsNaN(l.Longitude)
}

// haversineMeters 两点间大圆距离
func haversineMeters(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Perks 用户当前生效的能力与权益汇总
type Perks struct {
	RadiusBoost     int  `json:"radius_boost"`
	RemoteBoost     int  `json:"remote_boost"`
	RangeMultiplier bool `json:"range_multiplier"`
	WorshipBoost    bool `json:"worship_boost"`
}

func collectPerks(abilities []schema.UserAbility, entitlements []string) Perks {
	var p Perks
	for _, a := range abilities {
		switch a.EffectKind {
		case schema.EffectRadiusBoost:
			p.RadiusBoost += a.Magnitude
		case schema.EffectRemoteBoost:
			p.RemoteBoost += a.Magnitude
		}
	}
	for _, e := range entitlements {
		switch e {
		case schema.EntitlementRangeMultiplier:
			p.RangeMultiplier = true
		case schema.EntitlementWorshipBoost:
			p.WorshipBoost = true
		}
	}
	return p
}

// AllowedRadius (基础半径 + 能力加成) × 权益倍率
func (p Perks) AllowedRadius(def schema.LevelDefinition) float64 {
	r := float64(def.BaseRadius + p.RadiusBoost)
	if p.RangeMultiplier {
		r *= 2
	}
	return r
}

// RemoteAllowance 基础次数 + 能力加成 + 权益 1 次
func (p Perks) RemoteAllowance(def schema.LevelDefinition) int64 {
	n := int64(def.BaseRemoteAllowance + p.RemoteBoost)
	if p.WorshipBoost {
		n++
	}
	return n
}
