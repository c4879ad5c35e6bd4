package fakeserver

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDeck(t *testing.T) {
	deck := NewDeck()
	assert.Len(t, deck, 32)
	assert.Contains(t, deck, "7_of_spades")
	assert.Contains(t, deck, "ace_of_hearts")

	uniq := map[string]struct{}{}
	for _, c := range deck {
		uniq[c] = struct{}{}
	}
	assert.Len(t, uniq, 32)
}

func TestDealIsSeeded(t *testing.T) {
	h1, t1 := Deal(rand.New(rand.NewPCG(1, 1)))
	h2, t2 := Deal(rand.New(rand.NewPCG(1, 1)))
	assert.Equal(t, h1, h2)
	assert.Equal(t, t1, t2)

	total := len(t1)
	for _, h := range h1 {
		assert.Len(t, h, HandSize)
		total += len(h)
	}
	assert.Len(t, t1, TalonSize)
	assert.Equal(t, 32, total)
}

func TestLoginRaceDetector(t *testing.T) {
	d := NewLoginRaceDetector(50 * time.Millisecond)
	assert.True(t, d.Allow())
	assert.False(t, d.Allow())
	time.Sleep(60 * time.Millisecond)
	assert.True(t, d.Allow())

	off := NewLoginRaceDetector(0)
	assert.True(t, off.Allow())
	assert.True(t, off.Allow())
}
