package gang

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinNameLen = 3
	MaxNameLen = 20
	MinTagLen  = 2
	MaxTagLen  = 5

	MaxWeeklyFee = int64(10_000)
	MaxColorLen  = 16
	DefaultColor = "WHITE"

	InviteTTL         = 5 * time.Minute
	FeePeriod         = 7 * 24 * time.Hour
	MaxMissedPayments = 3
)

// Failure kinds. Every sentinel below wraps exactly one of these.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidState     = errors.New("invalid state")
	ErrValidation       = errors.New("validation failed")
)

var (
	ErrGangNotFound   = fmt.Errorf("%w: gang", ErrNotFound)
	ErrNotInGang      = fmt.Errorf("%w: player is not in a gang", ErrNotFound)
	ErrMemberNotFound = fmt.Errorf("%w: member", ErrNotFound)
	ErrPerkNotFound   = fmt.Errorf("%w: perk", ErrNotFound)
	ErrChunkNotOwned  = fmt.Errorf("%w: territory not owned", ErrNotFound)

	ErrNameTaken      = fmt.Errorf("%w: gang name is taken", ErrAlreadyExists)
	ErrTagTaken       = fmt.Errorf("%w: gang tag is taken", ErrAlreadyExists)
	ErrAlreadyMember  = fmt.Errorf("%w: player is already a member", ErrAlreadyExists)
	ErrAlreadyInGang  = fmt.Errorf("%w: player is already in a gang", ErrAlreadyExists)
	ErrPerkUnlocked   = fmt.Errorf("%w: perk already unlocked", ErrAlreadyExists)
	ErrChunkTaken     = fmt.Errorf("%w: territory already claimed", ErrAlreadyExists)
	ErrTerritoryOwned = fmt.Errorf("%w: territory already owned by this gang", ErrAlreadyExists)

	ErrNoPermission = fmt.Errorf("%w: rank lacks permission", ErrUnauthorized)
	ErrRankTooLow   = fmt.Errorf("%w: target rank is not below yours", ErrUnauthorized)

	ErrRosterFull    = fmt.Errorf("%w: roster is full", ErrCapacityExceeded)
	ErrTerritoryFull = fmt.Errorf("%w: territory limit reached", ErrCapacityExceeded)
	ErrPerkBudget    = fmt.Errorf("%w: no perk points left", ErrCapacityExceeded)

	ErrLevelTooLow       = fmt.Errorf("%w: gang level too low", ErrInvalidState)
	ErrMaxLevel          = fmt.Errorf("%w: gang is at max level", ErrInvalidState)
	ErrInviteMissing     = fmt.Errorf("%w: no valid invite", ErrInvalidState)
	ErrInsufficientFunds = fmt.Errorf("%w: insufficient funds", ErrInvalidState)
	ErrBossMustTransfer  = fmt.Errorf("%w: boss must transfer leadership or disband first", ErrInvalidState)
	ErrSelfTarget        = fmt.Errorf("%w: cannot target yourself", ErrInvalidState)

	ErrInvalidName   = fmt.Errorf("%w: name must be %d-%d characters", ErrValidation, MinNameLen, MaxNameLen)
	ErrInvalidTag    = fmt.Errorf("%w: tag must be %d-%d letters or digits", ErrValidation, MinTagLen, MaxTagLen)
	ErrInvalidAmount = fmt.Errorf("%w: amount must be > 0", ErrValidation)
	ErrInvalidFee    = fmt.Errorf("%w: weekly fee must be between 0 and %d", ErrValidation, MaxWeeklyFee)
	ErrInvalidColor  = fmt.Errorf("%w: color must be 1-%d characters", ErrValidation, MaxColorLen)
	ErrInvalidRank   = fmt.Errorf("%w: unknown rank", ErrValidation)
	ErrInvalidPlayer = fmt.Errorf("%w: player id is required", ErrValidation)
)

var tagRE = regexp.MustCompile(`^[A-Z0-9]+$`)

// NormalizeName trims the name and checks its rune length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinNameLen || n > MaxNameLen {
		return "", ErrInvalidName
	}
	return name, nil
}

// NormalizeTag uppercases the tag and checks length and charset.
func NormalizeTag(tag string) (string, error) {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if len(tag) < MinTagLen || len(tag) > MaxTagLen || !tagRE.MatchString(tag) {
		return "", ErrInvalidTag
	}
	return tag, nil
}

func normalizeColor(color string) (string, error) {
	color = strings.ToUpper(strings.TrimSpace(color))
	if color == "" {
		return DefaultColor, nil
	}
	if utf8.RuneCountInString(color) > MaxColorLen {
		return "", ErrInvalidColor
	}
	return color, nil
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func tagKey(tag string) string {
	return strings.ToUpper(strings.TrimSpace(tag))
}
