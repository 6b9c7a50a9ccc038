package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRoller always rolls the highest face.
func fixedRoller(sides int) int { return sides }

func TestEvalFormula(t *testing.T) {
	tests := []struct {
		formula string
		total   int
		detail  string
	}{
		{"2d6", 12, "`2d6` [6, 6]"},
		{"d20", 20, "`d20` [20]"},
		{"2d6 + 1d4 * 2 - 3", 17, "`2d6` [6, 6] + `1d4` [4] * `2` - `3`"},
		{"10 / 3", 3, "`10` / `3`"},
		{"5-2*2", 1, "`5` - `2` * `2`"},
	}
	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			res, err := evalFormula(tt.formula, fixedRoller)
			require.NoError(t, err)
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, tt.detail, res.Detail)
		})
	}
}

func TestEvalFormulaErrors(t *testing.T) {
	_, err := evalFormula("", fixedRoller)
	assert.ErrorIs(t, err, errNoFormula)

	_, err = evalFormula("hello", fixedRoller)
	assert.ErrorIs(t, err, errNoFormula)

	_, err = evalFormula("4/0", fixedRoller)
	assert.ErrorIs(t, err, errDivZero)

	_, err = evalFormula("*2", fixedRoller)
	assert.Error(t, err)

	_, err = evalFormula("101d6", fixedRoller)
	assert.ErrorContains(t, err, "too big")

	_, err = evalFormula("2d1", fixedRoller)
	assert.ErrorContains(t, err, "invalid dice sides")
}

func TestRandomRollerStaysInRange(t *testing.T) {
	for range 200 {
		r := randomRoller(6)
		assert.GreaterOrEqual(t, r, 1)
		assert.LessOrEqual(t, r, 6)
	}
}
