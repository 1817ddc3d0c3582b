package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yuqie6/Sanpai/internal/schema"
)

func TestPeriodOfKeysAndBounds(t *testing.T) {
	ref := time.Date(2026, 10, 14, 23, 59, 0, 0, jst)

	cases := []struct {
		kind  schema.PeriodKind
		key   string
		label string
		start time.Time
		end   time.Time
	}{
		{schema.PeriodDaily, "2026-10-14", "2026-10-14", time.Date(2026, 10, 14, 0, 0, 0, 0, jst), time.Date(2026, 10, 15, 0, 0, 0, 0, jst)},
		{schema.PeriodWeekly, "2026-W42", "2026年第42周", time.Date(2026, 10, 12, 0, 0, 0, 0, jst), time.Date(2026, 10, 19, 0, 0, 0, 0, jst)},
		{schema.PeriodMonthly, "2026-10", "2026年10月", time.Date(2026, 10, 1, 0, 0, 0, 0, jst), time.Date(2026, 11, 1, 0, 0, 0, 0, jst)},
		{schema.PeriodYearly, "2026", "2026年", time.Date(2026, 1, 1, 0, 0, 0, 0, jst), time.Date(2027, 1, 1, 0, 0, 0, 0, jst)},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			p, err := PeriodOf(tc.kind, ref, jst)
			require.NoError(t, err)
			require.Equal(t, tc.key, p.Key)
			require.Equal(t, tc.label, p.Label)
			require.True(t, p.Start.Equal(tc.start), "start=%v", p.Start)
			require.True(t, p.End.Equal(tc.end), "end=%v", p.End)
			require.Equal(t, string(tc.kind)+":"+tc.key, p.ID())
		})
	}
}

func TestPeriodOfUsesLocalTimezone(t *testing.T) {
	// UTC 10-14 16:00 在东京已是 10-15
	p, err := PeriodOf(schema.PeriodDaily, time.Date(2026, 10, 14, 16, 0, 0, 0, time.UTC), jst)
	require.NoError(t, err)
	require.Equal(t, "2026-10-15", p.Key)
}

func TestPeriodOfISOWeekAcrossYear(t *testing.T) {
	p, err := PeriodOf(schema.PeriodWeekly, time.Date(2027, 1, 1, 12, 0, 0, 0, jst), jst)
	require.NoError(t, err)
	require.Equal(t, "2026-W53", p.Key)
	require.True(t, p.Start.Equal(time.Date(2026, 12, 28, 0, 0, 0, 0, jst)))
}

func TestLastCompletedPeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 1, 0, jst)
	p, err := LastCompletedPeriod(schema.PeriodYearly, now, jst)
	require.NoError(t, err)
	require.Equal(t, "2025", p.Key)

	p, err = LastCompletedPeriod(schema.PeriodMonthly, now, jst)
	require.NoError(t, err)
	require.Equal(t, "2025-12", p.Key)

	_, err = LastCompletedPeriod("hourly", now, jst)
	require.ErrorIs(t, err, ErrValidation)
}

func TestParsePeriodKeyRoundTrip(t *testing.T) {
	cases := []struct {
		kind  schema.PeriodKind
		key   string
		start time.Time
	}{
		{schema.PeriodDaily, "2026-10-15", time.Date(2026, 10, 15, 0, 0, 0, 0, jst)},
		{schema.PeriodWeekly, "2026-W42", time.Date(2026, 10, 12, 0, 0, 0, 0, jst)},
		{schema.PeriodWeekly, "2026-W53", time.Date(2026, 12, 28, 0, 0, 0, 0, jst)},
		{schema.PeriodWeekly, "2026-W01", time.Date(2025, 12, 29, 0, 0, 0, 0, jst)},
		{schema.PeriodMonthly, "2026-09", time.Date(2026, 9, 1, 0, 0, 0, 0, jst)},
		{schema.PeriodYearly, "2025", time.Date(2025, 1, 1, 0, 0, 0, 0, jst)},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			p, err := ParsePeriodKey(tc.kind, tc.key, jst)
			require.NoError(t, err)
			require.Equal(t, tc.key, p.Key)
			require.True(t, p.Start.Equal(tc.start), "start=%v", p.Start)
		})
	}
}

func TestParsePeriodKeyRejectsInvalid(t *testing.T) {
	for _, tc := range []struct {
		kind schema.PeriodKind
		key  string
	}{
		{schema.PeriodWeekly, "2025-W53"},
		{schema.PeriodWeekly, "2026-10"},
		{schema.PeriodMonthly, "2026-13"},
		{schema.PeriodDaily, "2026-W42"},
		{"hourly", "2026"},
	} {
		_, err := ParsePeriodKey(tc.kind, tc.key, jst)
		require.ErrorIs(t, err, ErrValidation, "%s:%s", tc.kind, tc.key)
	}
}

func TestSlotsAtCoversEveryWindow(t *testing.T) {
	slots := slotsAt(time.Date(2026, 10, 15, 23, 30, 0, 0, jst), jst)
	require.Equal(t, []schema.WindowSlot{
		schema.AllTime,
		{Window: schema.WindowYearly, PeriodKey: "2026"},
		{Window: schema.WindowMonthly, PeriodKey: "2026-10"},
		{Window: schema.WindowWeekly, PeriodKey: "2026-W42"},
		{Window: schema.WindowDaily, PeriodKey: "2026-10-15"},
	}, slots)
}
