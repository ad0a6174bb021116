package gameserver

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cfoust/skirmish/pkg/gameserver/game"
)

var ErrUnknownCommand = errors.New("unknown command")

// Status is a point-in-time summary of the match for operators.
type Status struct {
	Match   string                `json:"match"`
	Level   string                `json:"level"`
	Phase   string                `json:"phase"`
	PreGame int32                 `json:"pregame"`
	Active  int32                 `json:"active"`
	Berserk bool                  `json:"berserk"`
	Scores  map[game.TeamID]int32 `json:"scores"`
	Players int                   `json:"players"`
	Clients int                   `json:"clients"`
	Uptime  string                `json:"uptime"`
}

func (s *Server) Status() (Status, error) {
	var status Status
	err := s.Call("status", func() {
		status = Status{
			Match:   s.ID.String(),
			Level:   s.level.Get(),
			Phase:   s.Lifecycle.Phase().String(),
			PreGame: s.Lifecycle.PreGameRemaining(),
			Active:  s.Lifecycle.ActiveRemaining(),
			Berserk: s.Lifecycle.Berserk(),
			Scores:  s.Ledger.Scores(),
			Players: s.Sessions.Len(),
			Clients: s.Clients.Len(),
			Uptime:  s.Uptime().Round(time.Second).String(),
		}
	})
	return status, err
}

type ServerCommand struct {
	name        string
	argsFormat  string
	aliases     []string
	description string
	f           func(s *Server, args []string) (string, error)
}

func (cmd *ServerCommand) String() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", cmd.name, cmd.argsFormat))
}

func (cmd *ServerCommand) Detailed() string {
	aliases := ""
	if len(cmd.aliases) > 0 {
		aliases = fmt.Sprintf(" (alias %s)", strings.Join(cmd.aliases, ", "))
	}
	return fmt.Sprintf("%s%s: %s", cmd.String(), aliases, cmd.description)
}

// ServerCommands is the operator command surface.
type ServerCommands struct {
	s       *Server
	byName  map[string]*ServerCommand
	byAlias map[string]*ServerCommand
}

func NewCommands(s *Server, cmds ...*ServerCommand) *ServerCommands {
	sc := &ServerCommands{
		s:       s,
		byName:  map[string]*ServerCommand{},
		byAlias: map[string]*ServerCommand{},
	}
	for _, cmd := range cmds {
		sc.Register(cmd)
	}
	return sc
}

func (sc *ServerCommands) Register(cmd *ServerCommand) {
	sc.byName[cmd.name] = cmd
	sc.byAlias[cmd.name] = cmd
	for _, alias := range cmd.aliases {
		sc.byAlias[alias] = cmd
	}
}

func (sc *ServerCommands) Help() string {
	names := make([]string, 0, len(sc.byName))
	for name := range sc.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, sc.byName[name].Detailed())
	}
	return strings.Join(lines, "\n")
}

// Handle runs one command line such as "level dust".
func (sc *ServerCommands) Handle(msg string) (string, error) {
	parts := strings.Fields(msg)
	if len(parts) == 0 {
		return "", ErrUnknownCommand
	}
	command, args := parts[0], parts[1:]

	if command == "help" {
		return sc.Help(), nil
	}

	cmd, ok := sc.byAlias[command]
	if !ok {
		return "", fmt.Errorf("%w '%s'", ErrUnknownCommand, command)
	}
	return cmd.f(sc.s, args)
}

var RestartMatch = &ServerCommand{
	name:        "restart",
	aliases:     []string{"again"},
	description: "starts a new match on the current level, keeping teams",
	f: func(s *Server, args []string) (string, error) {
		if err := s.Restart(); err != nil {
			return "", err
		}
		return fmt.Sprintf("restarted as %s", s.MatchID()), nil
	},
}

var ChangeLevel = &ServerCommand{
	name:        "level",
	argsFormat:  "NAME",
	aliases:     []string{"map"},
	description: "loads a level and restarts the match on it",
	f: func(s *Server, args []string) (string, error) {
		if len(args) < 1 {
			return "no level given", nil
		}
		if err := s.TransitionLevel(args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("loaded %s", args[0]), nil
	},
}

var ShowStatus = &ServerCommand{
	name:        "status",
	aliases:     []string{"info"},
	description: "prints the phase, clocks and scores",
	f: func(s *Server, args []string) (string, error) {
		status, err := s.Status()
		if err != nil {
			return "", err
		}

		teams := make([]game.TeamID, 0, len(status.Scores))
		for team := range status.Scores {
			teams = append(teams, team)
		}
		sort.Slice(teams, func(i, j int) bool { return teams[i] < teams[j] })

		scores := make([]string, 0, len(teams))
		for _, team := range teams {
			scores = append(scores, fmt.Sprintf("%s=%d", team, status.Scores[team]))
		}

		return fmt.Sprintf(
			"%s on %s: %s pregame=%d active=%d scores=[%s] players=%d",
			status.Match,
			status.Level,
			status.Phase,
			status.PreGame,
			status.Active,
			strings.Join(scores, " "),
			status.Players,
		), nil
	},
}
