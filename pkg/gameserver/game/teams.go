package game

import (
	"fmt"
)

// Assignment hands out teams round robin. A controller keeps its team until
// it is released; released teams are not handed back early.
type Assignment struct {
	numTeams int
	next     int
	teams    map[ControllerID]TeamID
}

func NewAssignment(numTeams int) *Assignment {
	if numTeams < 1 {
		numTeams = DefaultNumTeams
	}
	return &Assignment{
		numTeams: numTeams,
		teams:    make(map[ControllerID]TeamID),
	}
}

func (a *Assignment) NumTeams() int {
	return a.numTeams
}

func (a *Assignment) Assign(controller ControllerID) TeamID {
	if team, ok := a.teams[controller]; ok {
		return team
	}

	team := TeamID(a.next)
	a.next = (a.next + 1) % a.numTeams
	a.teams[controller] = team
	return team
}

func (a *Assignment) Release(controller ControllerID) bool {
	if _, ok := a.teams[controller]; !ok {
		return false
	}
	delete(a.teams, controller)
	return true
}

func (a *Assignment) Team(controller ControllerID) (TeamID, bool) {
	team, ok := a.teams[controller]
	return team, ok
}

func (a *Assignment) Len() int {
	return len(a.teams)
}

// SpawnPoint is a location from the level, optionally tagged for a team.
type SpawnPoint struct {
	Name     string `yaml:"name" json:"name" toml:"name" cbor:"name"`
	Tag      string `yaml:"tag" json:"tag" toml:"tag" cbor:"tag,omitempty"`
	Position Vec3   `yaml:"position" json:"position" toml:"position" cbor:"position"`
}

func TeamTag(team TeamID) string {
	return fmt.Sprintf("Team%d", uint8(team))
}

// ChooseSpawn picks the first candidate tagged for the team. Without one it
// falls back to the first untagged candidate, then to the first candidate
// at all. ok is false only when there are no candidates.
func ChooseSpawn(team TeamID, candidates []SpawnPoint) (point SpawnPoint, ok bool) {
	if len(candidates) == 0 {
		return SpawnPoint{}, false
	}

	tag := TeamTag(team)
	for _, candidate := range candidates {
		if candidate.Tag == tag {
			return candidate, true
		}
	}

	for _, candidate := range candidates {
		if candidate.Tag == "" {
			return candidate, true
		}
	}

	return candidates[0], true
}
