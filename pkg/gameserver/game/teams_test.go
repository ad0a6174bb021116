package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundRobin(t *testing.T) {
	a := NewAssignment(2)

	var teams []TeamID
	for id := ControllerID(1); id <= 5; id++ {
		teams = append(teams, a.Assign(id))
	}
	assert.Equal(t, []TeamID{0, 1, 0, 1, 0}, teams)

	// Idempotent.
	assert.Equal(t, TeamID(1), a.Assign(2))
	assert.Equal(t, TeamID(1), a.Assign(2))
}

func TestReleaseDoesNotRewind(t *testing.T) {
	a := NewAssignment(2)
	a.Assign(1)
	a.Assign(2)

	assert.True(t, a.Release(1))
	assert.False(t, a.Release(1))
	_, ok := a.Team(1)
	assert.False(t, ok)

	assert.Equal(t, TeamID(0), a.Assign(3))
	assert.Equal(t, TeamID(1), a.Assign(1))
}

func TestInvalidTeamCount(t *testing.T) {
	assert.Equal(t, DefaultNumTeams, NewAssignment(0).NumTeams())
}

func TestChooseSpawn(t *testing.T) {
	points := []SpawnPoint{
		{Name: "a", Tag: "Team1"},
		{Name: "b"},
		{Name: "c", Tag: "Team0"},
	}

	point, ok := ChooseSpawn(0, points)
	require.True(t, ok)
	assert.Equal(t, "c", point.Name)

	point, _ = ChooseSpawn(1, points)
	assert.Equal(t, "a", point.Name)

	// No tag for team 2: first untagged point.
	point, _ = ChooseSpawn(2, points)
	assert.Equal(t, "b", point.Name)

	point, _ = ChooseSpawn(2, []SpawnPoint{{Name: "x", Tag: "Team0"}})
	assert.Equal(t, "x", point.Name)

	_, ok = ChooseSpawn(0, nil)
	assert.False(t, ok)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewAssignment(2))

	first, created := r.Join(10)
	require.True(t, created)
	again, created := r.Join(10)
	assert.False(t, created)
	assert.Same(t, first, again)

	second, _ := r.Join(11)
	assert.NotEqual(t, first.Team, second.Team)
	second.Entity = 4

	found, ok := r.ByEntity(4)
	require.True(t, ok)
	assert.Equal(t, ControllerID(11), found.Controller)

	var order []ControllerID
	r.Each(func(s *PlayerSession) { order = append(order, s.Controller) })
	assert.Equal(t, []ControllerID{10, 11}, order)

	_, ok = r.Leave(10)
	assert.True(t, ok)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, r.Teams().Len())
}
