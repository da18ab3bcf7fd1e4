package game

import (
	"errors"
	"math"
	"regexp"
	"strings"
)

const (
	StatMin = 1
	StatMax = 20

	LoyaltyMin = 0
	LoyaltyMax = 100

	// A party at or below this loyalty refuses work.
	UnavailableLoyalty = 20

	ReputationMin = 0
	ReputationMax = 100

	DifficultyMin = 1
	DifficultyMax = 5

	PointsPerDifficulty  = 10
	GoldPerTrainingPoint = 100

	DefaultQuarterLengthDays = 90

	GameOverInsufficientFunds = "insufficient funds for quarterly payment"
)

var (
	ErrQuestNotFound        = errors.New("quest not found")
	ErrPartyNotFound        = errors.New("party not found")
	ErrPartyUnavailable     = errors.New("party unavailable")
	ErrPartyBusy            = errors.New("party is assigned to a quest")
	ErrInvalidTransition    = errors.New("invalid quest transition")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrRosterFull           = errors.New("roster at capacity")
	ErrStatAtMax            = errors.New("stat already at maximum")
	ErrInvalidAmount        = errors.New("amount must be > 0")
	ErrDebtClosed           = errors.New("debt is not active")
	ErrGameOver             = errors.New("game over")
	ErrInvalidQuest         = errors.New("invalid quest definition")
	ErrInvalidEquipment     = errors.New("invalid equipment")
	ErrInvalidName          = errors.New("name must be 2-32 letters, digits, spaces or '-'")
	ErrInvalidSnapshot      = errors.New("invalid session snapshot")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExists        = errors.New("session already exists")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 '\-]{1,31}$`)

func ValidateName(name string) error {
	if !nameRE.MatchString(strings.TrimSpace(name)) {
		return ErrInvalidName
	}
	return nil
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func clampFloat(v, low, high float64) float64 {
	return math.Max(low, math.Min(high, v))
}

func ClampStat(v int) int {
	return clampInt(v, StatMin, StatMax)
}

func ClampLoyalty(v int) int {
	return clampInt(v, LoyaltyMin, LoyaltyMax)
}

func ClampReputation(v int) int {
	return clampInt(v, ReputationMin, ReputationMax)
}

// TrainingGain converts gold spent on training into stat points.
func TrainingGain(cost int64) int {
	gain := int(cost / GoldPerTrainingPoint)
	if gain < 1 {
		return 1
	}
	return gain
}

// QuarterlyInterest is the interest accrued on balance over one quarter of an annual rate.
func QuarterlyInterest(balance int64, rate float64) int64 {
	return int64(math.Round(float64(balance) * rate / 4))
}

// FailurePenalty is the reputation lost when a quest fails; truncates toward zero.
func FailurePenalty(impact int) int {
	return -(impact / 2)
}

// QuarterForDay maps a 1-based day onto its 1-based quarter.
func QuarterForDay(day, quarterLength int) int {
	if quarterLength <= 0 {
		quarterLength = DefaultQuarterLengthDays
	}
	if day < 1 {
		day = 1
	}
	return (day-1)/quarterLength + 1
}
