package fakeserver

import "github.com/oleksandrkozlov/preferans/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickPlayer
	DropFrame
)

// Policy decides what to do with a player whose send queue is full.
type Policy interface {
	OnBackpressure(id domain.PlayerID) BackpressureAction
}

type KickPolicy struct{}

func (KickPolicy) OnBackpressure(domain.PlayerID) BackpressureAction { return KickPlayer }
