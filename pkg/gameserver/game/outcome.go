package game

type Result uint8

const (
	ResultLoss Result = iota
	ResultWin
)

func (r Result) String() string {
	if r == ResultWin {
		return "win"
	}
	return "loss"
}

// Outcome decides a team's result from the final scores. Ties count as a
// win for everyone involved.
func Outcome(team TeamID, scores map[TeamID]int32) Result {
	own := scores[team]
	for other, score := range scores {
		if other != team && score > own {
			return ResultLoss
		}
	}
	return ResultWin
}
