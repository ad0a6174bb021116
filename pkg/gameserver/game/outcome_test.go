package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	scores := map[TeamID]int32{0: 40, 1: 10}
	assert.Equal(t, ResultWin, Outcome(0, scores))
	assert.Equal(t, ResultLoss, Outcome(1, scores))

	tied := map[TeamID]int32{0: 5, 1: 5}
	assert.Equal(t, ResultWin, Outcome(0, tied))
	assert.Equal(t, ResultWin, Outcome(1, tied))

	assert.Equal(t, ResultLoss, Outcome(2, scores))
	assert.Equal(t, "win", ResultWin.String())
}
