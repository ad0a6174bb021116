// Package protocol defines the messages exchanged between the match server
// and its clients. Every message is a CBOR map carrying an Op.
package protocol

import (
	"fmt"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/fxamacker/cbor/v2"
)

const (
	// Server -> client
	WelcomeOp int = iota
	FrameOp
	ErrorOp
	// Client -> server
	RequestOp
	DisconnectOp
)

// Sent once after the server has assigned the client a team and entity.
type WelcomeMessage struct {
	Op         int // WelcomeOp
	Controller game.ControllerID
	Team       game.TeamID
	Entity     game.EntityID
	Match      string
	Level      string
}

// Carries replicated changes, oldest first. The first frame a client
// receives is the full snapshot.
type FrameMessage struct {
	Op      int // FrameOp
	Changes []replication.Change
}

type ErrorMessage struct {
	Op      int // ErrorOp
	Message string
}

// Asks the server to perform an action on the client's behalf.
type RequestMessage struct {
	Op     int // RequestOp
	Action game.Action
	Aim    game.Vec3
	Delta  int
}

func (r RequestMessage) Request() game.Request {
	return game.Request{
		Action: r.Action,
		Aim:    r.Aim,
		Delta:  r.Delta,
	}
}

type GenericMessage struct {
	Op int
}

func NewRequest(req game.Request) RequestMessage {
	return RequestMessage{
		Op:     RequestOp,
		Action: req.Action,
		Aim:    req.Aim,
		Delta:  req.Delta,
	}
}

func Welcome(session game.PlayerSession, match, level string) WelcomeMessage {
	return WelcomeMessage{
		Op:         WelcomeOp,
		Controller: session.Controller,
		Team:       session.Team,
		Entity:     session.Entity,
		Match:      match,
		Level:      level,
	}
}

func Frame(changes []replication.Change) FrameMessage {
	return FrameMessage{
		Op:      FrameOp,
		Changes: changes,
	}
}

func Error(err error) ErrorMessage {
	return ErrorMessage{
		Op:      ErrorOp,
		Message: err.Error(),
	}
}

func Encode(message any) ([]byte, error) {
	return cbor.Marshal(message)
}

// Decode reads the Op of a message and unmarshals it into the matching
// type.
func Decode(data []byte) (any, error) {
	var generic GenericMessage
	if err := cbor.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("could not read op: %w", err)
	}

	var message any
	switch generic.Op {
	case WelcomeOp:
		message = &WelcomeMessage{}
	case FrameOp:
		message = &FrameMessage{}
	case ErrorOp:
		message = &ErrorMessage{}
	case RequestOp:
		message = &RequestMessage{}
	case DisconnectOp:
		return generic, nil
	default:
		return nil, fmt.Errorf("unknown op %d", generic.Op)
	}

	if err := cbor.Unmarshal(data, message); err != nil {
		return nil, fmt.Errorf("could not decode op %d: %w", generic.Op, err)
	}
	return message, nil
}
