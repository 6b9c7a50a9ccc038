package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"github.com/keshon/lazycmd/pkg/cmd"
)

var (
	tokenRegex = regexp.MustCompile(`(?i)(\d*d\d+|\d+|[+\-*/])`)
	diceRegex  = regexp.MustCompile(`(?i)^(\d*)d(\d+)$`)
	validOps   = map[string]bool{"+": true, "-": true, "*": true, "/": true}

	errNoFormula = errors.New("can't parse your formula, try something like `2d6+1d4*2-3`")
	errDivZero   = errors.New("division by zero is forbidden, even in games")
)

type term struct {
	value int
	desc  string
	op    string
}

// roller rolls one die with the given number of sides, returning 1..sides.
type roller func(sides int) int

func randomRoller(sides int) int { return rand.IntN(sides) + 1 }

// rollResult is an evaluated formula.
type rollResult struct {
	Formula string
	Detail  string
	Total   int
}

func newRoll() *simple {
	return &simple{
		name:    "roll",
		desc:    "Roll dice with formulas like 2d6+1d4*2.",
		aliases: []string{"r", "dice"},
		run: func(ctx context.Context, inv *cmd.Invocation) error {
			formula := inv.Options["formula"]
			if inv.Kind == cmd.KindText {
				formula = inv.Rest(0)
			}
			res, err := evalFormula(formula, randomRoller)
			if err != nil {
				return replyEphemeral(ctx, inv, "🎲 Dice Roll", err.Error())
			}
			return reply(ctx, inv, "🎲 Dice Roll",
				fmt.Sprintf("**User Input**:\t`%s`\n**Calculation**:\t%s\n**Result**:\t**%d**", res.Formula, res.Detail, res.Total))
		},
	}
}

// evalFormula evaluates dice terms left to right, with * and / binding
// tighter than + and -.
func evalFormula(formula string, roll roller) (rollResult, error) {
	formula = strings.ReplaceAll(formula, " ", "")
	tokens := tokenRegex.FindAllString(formula, -1)
	if len(tokens) == 0 {
		return rollResult{}, errNoFormula
	}

	var terms []term
	currentOp := "+"
	for _, token := range tokens {
		if validOps[token] {
			currentOp = token
			continue
		}
		val, desc, err := evaluateToken(token, roll)
		if err != nil {
			return rollResult{}, fmt.Errorf("failed to evaluate `%s`: %w", token, err)
		}
		terms = append(terms, term{value: val, desc: desc, op: currentOp})
	}
	if len(terms) == 0 {
		return rollResult{}, errNoFormula
	}

	var merged []term
	for _, t := range terms {
		if t.op != "*" && t.op != "/" {
			merged = append(merged, t)
			continue
		}
		if len(merged) == 0 {
			return rollResult{}, errors.New("syntax error: operator without left operand")
		}
		prev := merged[len(merged)-1]
		merged = merged[:len(merged)-1]

		val := prev.value * t.value
		if t.op == "/" {
			if t.value == 0 {
				return rollResult{}, errDivZero
			}
			val = prev.value / t.value
		}
		merged = append(merged, term{
			value: val,
			desc:  fmt.Sprintf("%s %s %s", prev.desc, t.op, t.desc),
			op:    prev.op,
		})
	}

	total := 0
	var details []string
	for _, t := range merged {
		if len(details) > 0 {
			details = append(details, fmt.Sprintf(" %s ", t.op))
		}
		details = append(details, t.desc)
		if t.op == "-" {
			total -= t.value
		} else {
			total += t.value
		}
	}
	return rollResult{Formula: formula, Detail: strings.Join(details, ""), Total: total}, nil
}

func evaluateToken(token string, roll roller) (int, string, error) {
	if m := diceRegex.FindStringSubmatch(token); m != nil {
		count := 1
		if m[1] != "" {
			n, err := strconv.Atoi(m[1])
			if err != nil || n < 1 {
				return 0, "", errors.New("invalid dice count")
			}
			count = n
		}
		sides, err := strconv.Atoi(m[2])
		if err != nil || sides < 2 {
			return 0, "", errors.New("invalid dice sides")
		}
		if count > 100 || sides > 1000 {
			return 0, "", errors.New("too big. max 100 dice, 1000 sides")
		}

		sum := 0
		rolls := make([]string, 0, count)
		for range count {
			r := roll(sides)
			sum += r
			rolls = append(rolls, strconv.Itoa(r))
		}
		return sum, fmt.Sprintf("`%s` [%s]", token, strings.Join(rolls, ", ")), nil
	}

	num, err := strconv.Atoi(token)
	if err != nil {
		return 0, "", errors.New("not a number or dice")
	}
	return num, fmt.Sprintf("`%d`", num), nil
}
