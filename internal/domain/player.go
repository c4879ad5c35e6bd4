// Package domain contains the harness entities without transport logic, plus the error taxonomy
// shared by every layer.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxPlayerIDLen   = 36
	MaxPlayerNameLen = 36
)

var (
	ErrPlayerNameTooLong = errors.New("player name too long")
	ErrPlayerNameEmpty   = errors.New("player name empty")
)

type PlayerID string

// Player is the identity a simulated client logs in with.
// ID never goes on the wire; it correlates log lines of one session.
type Player struct {
	ID   PlayerID `json:"id"`
	Name string   `json:"name"`
}

func NewPlayer(name string) (*Player, error) {
	if err := validatePlayerName(name); err != nil {
		return nil, err
	}
	id := PlayerID(uuid.NewString())
	return &Player{ID: id, Name: name}, nil
}

func validatePlayerName(name string) error {
	if len(name) == 0 {
		return ErrPlayerNameEmpty
	}
	if len(name) > MaxPlayerNameLen {
		return ErrPlayerNameTooLong
	}
	return nil
}
