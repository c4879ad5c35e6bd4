package fakeserver

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/oleksandrkozlov/preferans/internal/codec"
	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// Field numbers of the game messages this server produces. Schema:
//
//	LoginResponse { player_id = 1; repeated PlayerInfo players = 2; error = 3; }
//	PlayerInfo    { player_id = 1; player_name = 2; }
//	PlayerJoined  { player_id = 1; player_name = 2; }
//	PlayerLeft    { player_id = 1; }
//	DealCards     { repeated cards = 1; }
//	PlayerTurn    { player_id = 1; stage = 2; repeated talon = 3; }
//	Bidding       { player_id = 1; bid = 2; }
const (
	FieldPlayerID   protowire.Number = 1
	FieldPlayerName protowire.Number = 2
	FieldPlayers    protowire.Number = 2
	FieldError      protowire.Number = 3
	FieldCards      protowire.Number = 1
	FieldStage      protowire.Number = 2
	FieldTalon      protowire.Number = 3
	FieldBid        protowire.Number = 2
)

const (
	StageBidding      = "Bidding"
	StageTalonPicking = "TalonPicking"
	StagePlaying      = "Playing"
)

func envelope(method string, p *codec.Payload) domain.Envelope {
	return domain.Envelope{Method: method, Payload: p.Bytes()}
}

func loginResponse(id domain.PlayerID, players []domain.Player, errMsg string) domain.Envelope {
	p := codec.NewPayload().String(FieldPlayerID, string(id))
	for _, pl := range players {
		p.Message(FieldPlayers, codec.NewPayload().
			String(FieldPlayerID, string(pl.ID)).
			String(FieldPlayerName, pl.Name))
	}
	p.String(FieldError, errMsg)
	return envelope(domain.MethodLoginResponse, p)
}

func playerJoined(pl domain.Player) domain.Envelope {
	return envelope(domain.MethodPlayerJoined, codec.NewPayload().
		String(FieldPlayerID, string(pl.ID)).
		String(FieldPlayerName, pl.Name))
}

func playerLeft(id domain.PlayerID) domain.Envelope {
	return envelope(domain.MethodPlayerLeft, codec.NewPayload().String(FieldPlayerID, string(id)))
}

func dealCards(cards []string) domain.Envelope {
	return envelope(domain.MethodDealCards, codec.NewPayload().Strings(FieldCards, cards))
}

func playerTurn(id domain.PlayerID, stage string, talon []string) domain.Envelope {
	return envelope(domain.MethodPlayerTurn, codec.NewPayload().
		String(FieldPlayerID, string(id)).
		String(FieldStage, stage).
		Strings(FieldTalon, talon))
}

func bidding(id domain.PlayerID, bid string) domain.Envelope {
	return envelope(domain.MethodBidding, codec.NewPayload().
		String(FieldPlayerID, string(id)).
		String(FieldBid, bid))
}
