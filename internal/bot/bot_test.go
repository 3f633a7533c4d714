package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectRisk(t *testing.T) {
	risky := []string{
		"я не хочу жить",
		"Хочу умереть, всё надоело",
		"думаю покончить с собой",
		"СУИЦИД это выход?",
	}
	for _, text := range risky {
		assert.True(t, DetectRisk(text), "expected risk hit: %q", text)
	}

	safe := []string{
		"",
		"сегодня был тяжёлый день",
		"мне грустно и тревожно",
		"хочу жить лучше",
	}
	for _, text := range safe {
		assert.False(t, DetectRisk(text), "expected no risk hit: %q", text)
	}
}

func TestSeverityBand(t *testing.T) {
	assert.Equal(t, "минимальная", SeverityBand("PHQ9", 4))
	assert.Equal(t, "лёгкая", SeverityBand("PHQ9", 5))
	assert.Equal(t, "умеренная", SeverityBand("PHQ9", 14))
	assert.Equal(t, "умеренно-тяжёлая", SeverityBand("PHQ9", 19))
	assert.Equal(t, "тяжёлая", SeverityBand("PHQ9", 27))

	assert.Equal(t, "минимальная", SeverityBand("GAD7", 0))
	assert.Equal(t, "лёгкая", SeverityBand("GAD7", 9))
	assert.Equal(t, "умеренная", SeverityBand("GAD7", 10))
	assert.Equal(t, "тяжёлая", SeverityBand("GAD7", 21))
}

func TestJournalWindowSingleUse(t *testing.T) {
	b := &Bot{
		JournalWindow: time.Minute,
		journalUntil:  make(map[int64]time.Time),
		scaleRuns:     make(map[int64]*scaleRun),
	}

	assert.False(t, b.takeJournalWindow(1), "no window opened yet")

	b.openJournalWindow(1)
	assert.True(t, b.takeJournalWindow(1))
	assert.False(t, b.takeJournalWindow(1), "window is consumed on first take")

	// Other users are unaffected.
	b.openJournalWindow(2)
	assert.False(t, b.takeJournalWindow(3))
	assert.True(t, b.takeJournalWindow(2))
}

func TestJournalWindowExpires(t *testing.T) {
	b := &Bot{
		JournalWindow: -time.Second,
		journalUntil:  make(map[int64]time.Time),
		scaleRuns:     make(map[int64]*scaleRun),
	}

	b.openJournalWindow(1)
	assert.False(t, b.takeJournalWindow(1), "expired window must not capture")
}
