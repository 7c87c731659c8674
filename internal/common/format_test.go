package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatCC(t *testing.T) {
	assert.Equal(t, "+8 CC", FormatCC(8, true))
	assert.Equal(t, "8 CC", FormatCC(8, false))
	assert.Equal(t, "-20 CC", FormatCC(-20, true))
	assert.Equal(t, "0 CC", FormatCC(0, true))
}

func TestFormatRef(t *testing.T) {
	assert.Equal(t, "none", FormatRef("", 12))
	assert.Equal(t, "game-1", FormatRef("game-1", 12))
	assert.Equal(t, "timeout:3f2a...", FormatRef("timeout:3f2a9c1e", 12))
	assert.Equal(t, "timeout:3f2a9c1e", FormatRef("timeout:3f2a9c1e", 0))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "never", FormatTime(time.Time{}))
	at := time.Date(2026, 3, 1, 14, 5, 9, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "2026-03-01 13:05:09", FormatTime(at))
}

func TestBoxPrefix(t *testing.T) {
	assert.Equal(t, "└  ", BoxPrefix(true))
	assert.Equal(t, "│  ", BoxPrefix(false))
}
