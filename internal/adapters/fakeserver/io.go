package fakeserver

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

func (s *Server) writePump(ctx context.Context, p *peer) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "fakeserver").Str("addr", p.addr).Msg("writePump ctx done")
			return
		case data, ok := <-p.send:
			if !ok {
				log.Debug().Str("module", "fakeserver").Str("addr", p.addr).Msg("writePump channel closed")
				return
			}
			if err := p.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "fakeserver").Msg("writePump set deadline")
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				log.Error().Err(err).Str("module", "fakeserver").Str("addr", p.addr).Msg("writePump write error")
				return
			}
		}
	}
}

func (s *Server) readPump(ctx context.Context, p *peer) {
	defer func() {
		log.Info().Str("module", "fakeserver").Str("addr", p.addr).Msg("readPump closing")
		s.table.Disconnect(p)
		s.forget(p)
		p.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := p.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "fakeserver").Str("addr", p.addr).Msg("readPump read error")
				}
				return
			}
			env, err := codec.Decode(data)
			if err != nil {
				log.Warn().Err(err).Str("module", "fakeserver").Str("addr", p.addr).Msg("bad message")
				continue
			}
			if !s.handleMessage(p, env) {
				return
			}
		}
	}
}

// handleMessage dispatches one envelope. It returns false when the server crashed.
func (s *Server) handleMessage(p *peer, env domain.Envelope) bool {
	switch env.Method {
	case domain.MethodLoginRequest:
		if !s.race.Allow() {
			s.crash("concurrent login")
			return false
		}
		f, err := codec.ParseFields(env.Payload)
		if err != nil {
			log.Warn().Err(err).Str("module", "fakeserver").Msg("bad LoginRequest")
			return true
		}
		s.table.Login(p, f.String(codec.LoginPlayerName), domain.PlayerID(f.String(codec.LoginPlayerID)))
	case domain.MethodBidding:
		f, err := codec.ParseFields(env.Payload)
		if err != nil {
			log.Warn().Err(err).Str("module", "fakeserver").Msg("bad Bidding")
			return true
		}
		s.table.Bid(p, f.String(FieldBid))
	case domain.MethodPingPong:
		_ = p.SendEnvelope(env)
	default:
		log.Warn().Str("module", "fakeserver").Str("method", env.Method).Msg("unknown method")
	}
	return true
}
