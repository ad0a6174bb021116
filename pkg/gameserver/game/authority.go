package game

import (
	"github.com/cfoust/skirmish/pkg/replication"

	"github.com/rs/zerolog"
)

// Authority is the one place mutators ask whether they may change state.
// Calls from a non-authoritative role are dropped and counted; they never
// surface as errors.
type Authority struct {
	role       replication.Role
	log        zerolog.Logger
	violations int
}

func NewAuthority(role replication.Role, logger zerolog.Logger) *Authority {
	return &Authority{
		role: role,
		log:  logger,
	}
}

func (a *Authority) Role() replication.Role {
	return a.role
}

// Mutate runs fn if this side may change state and reports whether it ran.
// Every mutator in the package goes through here.
func (a *Authority) Mutate(op string, fn func()) bool {
	if !a.allow(op) {
		return false
	}
	fn()
	return true
}

// Guarded is Mutate for mutators that return a result. A dropped call
// yields the zero value.
func Guarded[T any](a *Authority, op string, fn func() T) T {
	var result T
	a.Mutate(op, func() { result = fn() })
	return result
}

func (a *Authority) allow(op string) bool {
	if a.role == replication.RoleAuthority {
		return true
	}

	a.violations++
	a.log.Debug().
		Str("op", op).
		Str("role", a.role.String()).
		Msg("dropped mutation without authority")
	return false
}

func (a *Authority) Violations() int {
	return a.violations
}
