package fakeserver

import (
	"fmt"
	"math/rand/v2"
)

const (
	NumberOfPlayers = 3
	HandSize        = 10
	TalonSize       = 2
)

var (
	suits = []string{"spades", "diamonds", "clubs", "hearts"}
	ranks = []string{"7", "8", "9", "10", "jack", "queen", "king", "ace"}
)

// NewDeck returns the 32 card piquet deck in a fixed order, cards named like "queen_of_hearts".
func NewDeck() []string {
	deck := make([]string, 0, len(suits)*len(ranks))
	for _, r := range ranks {
		for _, s := range suits {
			deck = append(deck, fmt.Sprintf("%s_of_%s", r, s))
		}
	}
	return deck
}

// Deal shuffles a fresh deck and splits it into three hands and the talon.
func Deal(rng *rand.Rand) (hands [NumberOfPlayers][]string, talon []string) {
	deck := NewDeck()
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	for i := range hands {
		hands[i] = deck[i*HandSize : (i+1)*HandSize]
	}
	return hands, deck[NumberOfPlayers*HandSize:]
}
