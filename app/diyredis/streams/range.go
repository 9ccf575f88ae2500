package streams

import (
	"errors"
	"strconv"
	"strings"
)

var errInvalidRangeBound = errors.New("invalid stream range bound")

// ParseRangeBound parses one XRANGE endpoint: "-" (minimum), "+" (maximum),
// an explicit "<ms>-<seq>", or a bare "<ms>" (meaning ms-0 when used as the
// start bound, ms-<max seq> when used as the end bound, per the convention
// Redis uses so a caller can range over a whole millisecond without knowing
// its sequence numbers).
func ParseRangeBound(spec string, isStart bool) (Key, error) {
	if spec == "-" {
		return MinKey, nil
	}
	if spec == "+" {
		return MaxKey, nil
	}
	if strings.IndexByte(spec, '-') >= 0 {
		// Explicit ms-seq form (or the "-1"/"1-" shorthand); parseEntryKey
		// already knows how to parse this, and range bounds never use the
		// '*' wildcard so a zero-value Stream's sentinel LastEntry is inert.
		return NewKey(spec, Stream{})
	}

	ms, err := strconv.ParseUint(spec, 10, 64)
	if err != nil {
		return Key{}, errInvalidRangeBound
	}
	if isStart {
		return Key{ms, 0}, nil
	}
	return Key{ms, MaxUint64}, nil
}
