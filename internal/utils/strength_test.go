package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreRange(t *testing.T) {
	assert.Equal(t, 0, Score(""))
	for _, pw := range []string{"a", "aaaa", "weak123", "Correct-Horse-42", "Zt!8mKp#2v4w-Q9rL@x7nB%3kW"} {
		s := Score(pw)
		assert.GreaterOrEqual(t, s, 0, pw)
		assert.LessOrEqual(t, s, 100, pw)
	}
	assert.Equal(t, 100, Score("Zt!8mKp#2v4w-Q9rL@x7nB%3kW"))
}

func TestScoreOrdering(t *testing.T) {
	assert.Less(t, Score("weak123"), 50)
	assert.Less(t, Score("aaaa"), 50)
	assert.Less(t, Score("password"), 50)
	assert.GreaterOrEqual(t, Score("N3w-Horizon!2031"), 50)
	assert.GreaterOrEqual(t, Score("Correct-Horse-42"), 50)
	assert.GreaterOrEqual(t, Score("Another-Pass-77"), 50)
	assert.Less(t, Score("abcdef"), Score("afkqzm"))
	assert.Less(t, Score("aaaaaaaa"), Score("abqzmkte"))
	assert.Less(t, Score("Qwerty!2024x"), Score("Zt!8mKp#2v4w"))
}

func TestScoreDeterministic(t *testing.T) {
	for i := 0; i < 5; i++ {
		assert.Equal(t, Score("Correct-Horse-9"), Score("Correct-Horse-9"))
	}
}
