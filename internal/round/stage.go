package round

import (
	"fmt"
	"strconv"
	"strings"
)

// Stage is a round's position in its lifecycle. The numeric values are the
// ledger program's wire codes and must not change.
type Stage uint8

const (
	StageWaitStartRound Stage = 0
	StagePrediction     Stage = 1
	StageLive           Stage = 2
	StageEnded          Stage = 3
	StageCanceled       Stage = 4
)

// StageSelling is the lottery and spinner name for the open stage.
const StageSelling = StagePrediction

var stageNames = [...]string{
	StageWaitStartRound: "wait_start_round",
	StagePrediction:     "prediction",
	StageLive:           "live",
	StageEnded:          "ended",
	StageCanceled:       "canceled",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "stage(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the five known codes.
func (s Stage) Valid() bool {
	return s <= StageCanceled
}

// Terminal reports whether no further transition can leave s.
func (s Stage) Terminal() bool {
	return s == StageEnded || s == StageCanceled
}

// ParseStage accepts a stage name ("live", "selling") or its numeric code.
func ParseStage(v string) (Stage, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "selling" {
		return StageSelling, nil
	}
	for i, name := range stageNames {
		if v == name {
			return Stage(i), nil
		}
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 && Stage(n).Valid() {
		return Stage(n), nil
	}
	return 0, fmt.Errorf("unknown stage %q", v)
}
