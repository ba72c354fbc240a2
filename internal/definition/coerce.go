package definition

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

var (
	snowflake   = regexp.MustCompile(`^\d{17,20}$`)
	mentionID   = regexp.MustCompile(`^<(?:@!?|@&|#|a?:\w+:)(\d{17,20})>$`)
	durationAll = regexp.MustCompile(`^(?:(?:\d+(?:\.\d*)?|\.\d+)[smhdwMy]?)+$`)
	durationOne = regexp.MustCompile(`(\d+(?:\.\d*)?|\.\d+)([smhdwMy])?`)
)

var unitSeconds = map[string]float64{
	"":  1,
	"s": 1,
	"m": 60,
	"h": 60 * 60,
	"d": 24 * 60 * 60,
	"w": 7 * 24 * 60 * 60,
	"M": 30 * 24 * 60 * 60,
	"y": 365 * 24 * 60 * 60,
}

// Coerce converts token according to t. now anchors the time type.
func Coerce(t Type, token string, now time.Time) (any, error) {
	switch t {
	case TypeStr, "":
		return token, nil
	case TypeInt:
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, shellerr.New(shellerr.TypeCoercionError, "invalid int value: %q", token)
		}
		return n, nil
	case TypeFloat:
		f, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, shellerr.New(shellerr.TypeCoercionError, "invalid float value: %q", token)
		}
		return f, nil
	case TypeID:
		id, ok := ParseID(token)
		if !ok {
			return nil, shellerr.New(shellerr.TypeCoercionError, "invalid id value: %q", token)
		}
		return id, nil
	case TypeTryID:
		if id, ok := ParseID(token); ok {
			return id, nil
		}
		return token, nil
	case TypeTime:
		d, err := ParseDuration(token)
		if err != nil {
			return nil, err
		}
		return now.Add(d), nil
	default:
		return nil, shellerr.New(shellerr.TypeCoercionError, "unknown type %q", string(t))
	}
}

// ParseID extracts a snowflake from a numeric literal or mention token.
func ParseID(token string) (string, bool) {
	if snowflake.MatchString(token) {
		return token, true
	}
	if m := mentionID.FindStringSubmatch(token); m != nil {
		return m[1], true
	}
	return "", false
}

// ParseDuration parses a sum of number+unit chunks such as "1h30m" or "2.5d".
// A bare number counts as seconds; M is 30 days and y is 365 days.
func ParseDuration(token string) (time.Duration, error) {
	if !durationAll.MatchString(token) {
		return 0, shellerr.New(shellerr.TypeCoercionError, "invalid time value: %q", token)
	}

	var seconds float64
	for _, m := range durationOne.FindAllStringSubmatch(token, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, shellerr.New(shellerr.TypeCoercionError, "invalid time value: %q", token)
		}
		seconds += v * unitSeconds[m[2]]
	}
	if seconds*float64(time.Second) > math.MaxInt64 {
		return 0, shellerr.New(shellerr.TypeCoercionError, "time value out of range: %q", token)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
