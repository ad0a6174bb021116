//go:build !enet

package ingress

import (
	"context"
	"errors"
)

var ErrENetUnavailable = errors.New("built without enet support")

// ENetIngress needs cgo and the enet build tag.
type ENetIngress struct{}

func NewENetIngress(match Match, ids *IDs) *ENetIngress {
	return &ENetIngress{}
}

func (server *ENetIngress) Serve(ctx context.Context, port int) error {
	return ErrENetUnavailable
}
