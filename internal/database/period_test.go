package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func TestResolveWindow_Periods(t *testing.T) {
	// 01:30 on the 18th in IST, still the 17th in UTC
	now := time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		period   string
		wantFrom time.Time
		wantTo   time.Time
	}{
		{"today", time.Date(2026, 10, 18, 0, 0, 0, 0, ist), time.Date(2026, 10, 18, 23, 59, 59, 999e6, ist)},
		{"WEEKLY", time.Date(2026, 10, 12, 0, 0, 0, 0, ist), time.Date(2026, 10, 18, 23, 59, 59, 999e6, ist)},
		{"monthly", time.Date(2026, 10, 1, 0, 0, 0, 0, ist), time.Date(2026, 10, 31, 23, 59, 59, 999e6, ist)},
	}
	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			w, err := ResolveWindow(tt.period, "", "", ist, now)
			require.NoError(t, err)
			require.NotNil(t, w.From)
			require.NotNil(t, w.To)
			assert.True(t, tt.wantFrom.Equal(*w.From), "from %s", w.From)
			assert.True(t, tt.wantTo.Equal(*w.To), "to %s", w.To)
		})
	}
}

func TestResolveWindow_Explicit(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	w, err := ResolveWindow("today", "2026-02-01", "2026-02-28", time.UTC, now)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC).Equal(*w.From), "explicit range wins over the period")
	assert.True(t, time.Date(2026, 2, 28, 23, 59, 59, 999e6, time.UTC).Equal(*w.To))

	w, err = ResolveWindow("", "2026-02-01", "", time.UTC, now)
	require.NoError(t, err)
	assert.NotNil(t, w.From)
	assert.Nil(t, w.To)

	w, err = ResolveWindow("", "", "", time.UTC, now)
	require.NoError(t, err)
	assert.True(t, w.IsAllTime(), "no filter means all time")

	_, err = ResolveWindow("", "2026-03-01", "2026-02-01", time.UTC, now)
	assert.Error(t, err)
	_, err = ResolveWindow("", "01/02/2026", "", time.UTC, now)
	assert.Error(t, err)
	_, err = ResolveWindow("yearly", "", "", time.UTC, now)
	assert.Error(t, err)
}

func TestLoadLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation("", ""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone", "Also/Bad"))
	assert.Equal(t, "UTC", LoadLocation("Not/AZone", "UTC").String())
}
