package subscription

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"aura-bot/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BonusEvent{}))
	return db
}

func TestExtendExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("no current expiry counts from now", func(t *testing.T) {
		got := ExtendExpiry(nil, now, 7)
		assert.Equal(t, now.Add(7*24*time.Hour), got)
	})

	t.Run("expired subscription counts from now", func(t *testing.T) {
		past := now.Add(-48 * time.Hour)
		got := ExtendExpiry(&past, now, 7)
		assert.Equal(t, now.Add(7*24*time.Hour), got)
	})

	t.Run("active subscription is extended", func(t *testing.T) {
		future := now.Add(72 * time.Hour)
		got := ExtendExpiry(&future, now, 7)
		assert.Equal(t, future.Add(7*24*time.Hour), got)
	})
}

func TestBalanceMatchesReplay(t *testing.T) {
	db := openTestDB(t)
	p := NewProjection(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	grants := []models.BonusEvent{
		{UserID: 1, Type: models.BonusTypeJoin, Days: 7, Activated: true, CreatedAt: base},
		{UserID: 1, Type: models.BonusTypePaid, Days: 7, Activated: true, CreatedAt: base.Add(time.Hour)},
		{UserID: 1, Type: models.BonusTypePromo, Days: 3, Activated: false, CreatedAt: base.Add(2 * time.Hour)},
		{UserID: 1, Type: models.BonusTypePromo, Days: 5, Activated: true, CreatedAt: base.Add(3 * time.Hour)},
		{UserID: 2, Type: models.BonusTypeJoin, Days: 7, Activated: true, CreatedAt: base},
	}
	for i := range grants {
		require.NoError(t, db.Create(&grants[i]).Error)
	}

	got, err := p.Balance(1)
	require.NoError(t, err)
	assert.Equal(t, 19, got)

	events, err := p.Events(1)
	require.NoError(t, err)
	assert.Equal(t, got, ReplayBalance(events))

	// Other users' ledgers never leak in.
	other, err := p.Balance(2)
	require.NoError(t, err)
	assert.Equal(t, 7, other)
}

func TestIncrementalExpiryEqualsReplay(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	events := []models.BonusEvent{
		{Days: 7, Activated: true, CreatedAt: base},
		{Days: 7, Activated: true, CreatedAt: base.Add(2 * 24 * time.Hour)},      // still active: extend
		{Days: 3, Activated: true, CreatedAt: base.Add(30 * 24 * time.Hour)},     // lapsed: restart
		{Days: 10, Activated: false, CreatedAt: base.Add(31 * 24 * time.Hour)},   // inactive: skipped
	}

	// Incremental application, grant by grant.
	var incremental *time.Time
	for _, ev := range events {
		if !ev.Activated {
			continue
		}
		next := ExtendExpiry(incremental, ev.CreatedAt, ev.Days)
		incremental = &next
	}

	replayed := ReplayExpiry(events)
	require.NotNil(t, incremental)
	require.NotNil(t, replayed)
	assert.True(t, incremental.Equal(*replayed))

	// Sanity: the lapsed grant restarted the clock.
	assert.True(t, replayed.Equal(base.Add(33*24*time.Hour)))
}

func TestReplayExpiryEmptyLedger(t *testing.T) {
	assert.Nil(t, ReplayExpiry(nil))
	assert.Zero(t, ReplayBalance(nil))
}
