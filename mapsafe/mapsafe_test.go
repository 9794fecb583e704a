package mapsafe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	params := map[string]any{
		"speed":     1,
		"rate":      "1.25",
		"workers":   3.0,
		"voice":     "alloy",
		"verbose":   "true",
		"timeout":   "1.5s",
		"grace":     2,
		"nothing":   nil,
		"tags":      []string{"a"},
		"wrongType": []int{1},
	}

	assert.Equal(t, 1.0, Get(params, "speed", 0.0))
	assert.Equal(t, 1.25, Get(params, "rate", 0.0))
	assert.Equal(t, 3, Get(params, "workers", 0))
	assert.Equal(t, "alloy", Get(params, "voice", ""))
	assert.True(t, Get(params, "verbose", false))
	assert.Equal(t, 1500*time.Millisecond, Get(params, "timeout", time.Duration(0)))
	assert.Equal(t, 2*time.Second, Get(params, "grace", time.Duration(0)))
	assert.Equal(t, []string{"a"}, Get[[]string](params, "tags", nil))

	assert.Equal(t, 7, Get(params, "missing", 7))
	assert.Equal(t, "fallback", Get(params, "nothing", "fallback"))
	assert.Equal(t, 0.5, Get(params, "voice", 0.5))
	assert.Equal(t, "x", Get(params, "wrongType", "x"))
}

func TestGet_NilMap(t *testing.T) {
	assert.Equal(t, 42, Get(nil, "anything", 42))
}

func TestString(t *testing.T) {
	params := map[string]any{
		"rate":  1.5,
		"pitch": 2,
		"name":  "alvaro",
		"wait":  3 * time.Second,
	}

	assert.Equal(t, "1.5", String(params, "rate"))
	assert.Equal(t, "2", String(params, "pitch"))
	assert.Equal(t, "alvaro", String(params, "name"))
	assert.Equal(t, "3s", String(params, "wait"))
	assert.Empty(t, String(params, "missing"))
}
