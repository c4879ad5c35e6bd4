package fakeserver

import (
	"errors"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

const bidPass = "PASS"

// PlayerDTO is a read-only view of a seat for the status endpoint.
type PlayerDTO struct {
	ID        domain.PlayerID `json:"id"`
	Name      string          `json:"name"`
	Connected bool            `json:"connected"`
	Cards     int             `json:"cards"`
}

type seat struct {
	player domain.Player
	peer   *peer // nil while disconnected
	hand   []string
	bid    string
	leave  *time.Timer
}

// Table is the single game room. Every mutation happens under mu and every outbound envelope
// is queued while holding it, so each player sees events in the order they happened.
type Table struct {
	mu     sync.Mutex
	seats  []*seat
	dealt  bool
	talon  []string
	turn   int
	rng    *rand.Rand
	policy Policy
	grace  time.Duration
	log    zerolog.Logger
}

// NewTable creates an empty table. A disconnected player keeps the seat for grace before
// the others are told it left.
func NewTable(rng *rand.Rand, policy Policy, grace time.Duration) *Table {
	if policy == nil {
		policy = KickPolicy{}
	}
	return &Table{
		rng:    rng,
		policy: policy,
		grace:  grace,
		log:    log.With().Str("module", "fakeserver.table").Logger(),
	}
}

func (t *Table) Snapshot() []PlayerDTO {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PlayerDTO, 0, len(t.seats))
	for _, s := range t.seats {
		out = append(out, PlayerDTO{ID: s.player.ID, Name: s.player.Name, Connected: s.peer != nil, Cards: len(s.hand)})
	}
	return out
}

func (t *Table) Dealt() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dealt
}

// Login seats the player behind p, or rebinds an existing seat when id names one.
func (t *Table) Login(p *peer, name string, id domain.PlayerID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seatOf(p) != nil {
		t.reply(p, loginResponse("", nil, "already logged in"))
		return
	}
	if id != "" {
		if s := t.seatByID(id); s != nil {
			t.reconnect(s, p)
			return
		}
	}
	if len(t.seats) >= NumberOfPlayers {
		t.log.Warn().Str("name", name).Msg("table is full")
		t.reply(p, loginResponse("", t.players(), "table is full"))
		return
	}
	player, err := domain.NewPlayer(name)
	if err != nil {
		t.reply(p, loginResponse("", nil, err.Error()))
		return
	}

	s := &seat{player: *player, peer: p}
	t.seats = append(t.seats, s)
	t.log.Info().Str("name", name).Str("player_id", string(s.player.ID)).Int("seated", len(t.seats)).Msg("player joined")

	t.send(s, loginResponse(s.player.ID, t.players(), ""))
	for _, other := range t.seats[:len(t.seats)-1] {
		t.send(other, playerJoined(s.player))
		t.send(s, playerJoined(other.player))
	}
	if len(t.seats) == NumberOfPlayers && !t.dealt {
		t.deal()
	}
}

func (t *Table) reconnect(s *seat, p *peer) {
	if s.leave != nil {
		s.leave.Stop()
		s.leave = nil
	}
	if s.peer != nil && s.peer != p {
		s.peer.Close()
	}
	s.peer = p
	t.log.Info().Str("player_id", string(s.player.ID)).Msg("player reconnected")
	t.send(s, loginResponse(s.player.ID, t.players(), ""))
	if t.dealt {
		t.send(s, dealCards(s.hand))
		t.send(s, playerTurn(t.seats[t.turn].player.ID, t.stage(), nil))
	}
}

func (t *Table) deal() {
	hands, talon := Deal(t.rng)
	for i, s := range t.seats {
		s.hand = slices.Clone(hands[i])
		s.bid = ""
		t.send(s, dealCards(s.hand))
	}
	t.talon = slices.Clone(talon)
	t.dealt = true
	t.turn = 0
	t.log.Info().Strs("talon", t.talon).Msg("cards dealt")
	t.broadcast(nil, playerTurn(t.seats[t.turn].player.ID, StageBidding, nil))
}

// Bid records the bid of the player behind p, forwards it to the others and announces the
// next turn.
func (t *Table) Bid(p *peer, bid string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.seatOf(p)
	if s == nil || !t.dealt {
		t.log.Warn().Str("addr", p.addr).Msg("bid outside of a deal")
		return
	}
	if t.seats[t.turn] != s {
		t.log.Warn().Str("player_id", string(s.player.ID)).Msg("bid out of turn")
		return
	}
	s.bid = bid
	t.log.Info().Str("player_id", string(s.player.ID)).Str("bid", bid).Msg("bid")
	t.broadcast(s, bidding(s.player.ID, bid))

	stage := t.stage()
	switch stage {
	case StageTalonPicking:
		for i, other := range t.seats {
			if other.bid != bidPass {
				t.turn = i
			}
		}
		declarer := t.seats[t.turn]
		declarer.hand = append(declarer.hand, t.talon...)
		t.broadcast(nil, playerTurn(declarer.player.ID, stage, t.talon))
		return
	case StagePlaying:
		t.turn = 0
	default:
		t.turn = (t.turn + 1) % len(t.seats)
	}
	t.broadcast(nil, playerTurn(t.seats[t.turn].player.ID, stage, nil))
}

func (t *Table) stage() string {
	bids, passes := 0, 0
	for _, s := range t.seats {
		if s.bid != "" {
			bids++
		}
		if s.bid == bidPass {
			passes++
		}
	}
	if bids < NumberOfPlayers {
		return StageBidding
	}
	switch passes {
	case NumberOfPlayers:
		return StagePlaying
	case NumberOfPlayers - 1:
		return StageTalonPicking
	default:
		return StageBidding
	}
}

// Disconnect unbinds p. The seat is released right away, or after the grace period if the
// player does not come back.
func (t *Table) Disconnect(p *peer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.seatOf(p)
	if s == nil {
		return
	}
	s.peer = nil
	if t.grace <= 0 {
		t.remove(s)
		return
	}
	t.log.Info().Str("player_id", string(s.player.ID)).Dur("grace", t.grace).Msg("waiting for reconnection")
	s.leave = time.AfterFunc(t.grace, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if s.peer == nil && slices.Contains(t.seats, s) {
			t.remove(s)
		}
	})
}

func (t *Table) remove(s *seat) {
	t.seats = slices.DeleteFunc(t.seats, func(o *seat) bool { return o == s })
	if t.dealt {
		t.dealt = false
		t.talon = nil
		t.turn = 0
		for _, o := range t.seats {
			o.hand, o.bid = nil, ""
		}
	}
	t.log.Info().Str("player_id", string(s.player.ID)).Msg("player left")
	t.broadcast(nil, playerLeft(s.player.ID))
}

func (t *Table) players() []domain.Player {
	out := make([]domain.Player, 0, len(t.seats))
	for _, s := range t.seats {
		out = append(out, s.player)
	}
	return out
}

func (t *Table) seatOf(p *peer) *seat {
	for _, s := range t.seats {
		if s.peer == p {
			return s
		}
	}
	return nil
}

func (t *Table) seatByID(id domain.PlayerID) *seat {
	for _, s := range t.seats {
		if s.player.ID == id {
			return s
		}
	}
	return nil
}

func (t *Table) broadcast(except *seat, env domain.Envelope) {
	sent, dropped := 0, 0
	for _, s := range t.seats {
		if s == except || s.peer == nil {
			continue
		}
		if t.send(s, env) {
			sent++
		} else {
			dropped++
		}
	}
	t.log.Debug().Str("method", env.Method).Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast")
}

func (t *Table) send(s *seat, env domain.Envelope) bool {
	if s.peer == nil {
		return false
	}
	err := s.peer.SendEnvelope(env)
	if err == nil {
		return true
	}
	t.log.Warn().Err(err).Str("player_id", string(s.player.ID)).Str("method", env.Method).Msg("send failed")
	if errors.Is(err, ErrBackpressure) {
		switch t.policy.OnBackpressure(s.player.ID) {
		case KickPlayer:
			s.peer.Close()
		case DropFrame, NoAction:
		}
	}
	return false
}

func (t *Table) reply(p *peer, env domain.Envelope) {
	if err := p.SendEnvelope(env); err != nil {
		t.log.Warn().Err(err).Str("addr", p.addr).Str("method", env.Method).Msg("reply failed")
	}
}
