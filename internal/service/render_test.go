package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yuqie6/Sanpai/internal/schema"
)

func TestTitleVarsRender(t *testing.T) {
	p, err := PeriodOf(schema.PeriodWeekly, time.Date(2026, 10, 14, 0, 0, 0, 0, jst), jst)
	require.NoError(t, err)
	vars := titleVars{SubjectType: schema.SubjectAffinity, SubjectID: 7, SubjectName: "天照大御神", Rank: 2, Period: p}

	got := vars.render("{period}·{subject_name}(#{subject_id}) {rank_label}/{rank} {unknown}")
	require.Equal(t, "2026年第42周·天照大御神(#7) 第2名/2 {unknown}", got)
	require.Equal(t, "affinity:7:2026-W42", vars.identityKey())

	m := vars.jsonMap()
	require.Equal(t, "affinity", m["subject_type"])
	require.Equal(t, "2026-W42", m["period"])
}

func TestPerksAllowances(t *testing.T) {
	def := schema.LevelDefinition{Level: 2, BaseRadius: 150, BaseRemoteAllowance: 2}
	abilities := []schema.UserAbility{
		{EffectKind: schema.EffectRadiusBoost, Magnitude: 50},
		{EffectKind: schema.EffectRadiusBoost, Magnitude: 25},
		{EffectKind: schema.EffectRemoteBoost, Magnitude: 1},
	}

	plain := collectPerks(abilities, nil)
	require.Equal(t, 225.0, plain.AllowedRadius(def))
	require.Equal(t, int64(3), plain.RemoteAllowance(def))

	boosted := collectPerks(abilities, []string{schema.EntitlementRangeMultiplier, schema.EntitlementWorshipBoost})
	require.Equal(t, 450.0, boosted.AllowedRadius(def))
	require.Equal(t, int64(4), boosted.RemoteAllowance(def))
}

func TestHaversineMeters(t *testing.T) {
	tokyo := Location{Latitude: 35.6812, Longitude: 139.7671}
	osaka := Location{Latitude: 34.7025, Longitude: 135.4959}
	require.InDelta(t, 403000, haversineMeters(tokyo, osaka), 3000)
	require.Zero(t, haversineMeters(tokyo, tokyo))
}
