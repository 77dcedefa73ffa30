package model

import (
	"strconv"
	"strings"
)

// Count is an aggregate figure read from a detail page: a non-negative
// integer, or missing.
type Count struct {
	N     int
	Valid bool
}

// CountOf returns a valid count.
func CountOf(n int) Count {
	return Count{N: n, Valid: n >= 0}
}

// ParseCount accepts digits with optional thousands separators. Anything
// else, including negative numbers, yields a missing count.
func ParseCount(s string) Count {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || IsNA(s) {
		return Count{}
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return Count{}
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Count{}
	}
	return Count{N: n, Valid: true}
}

func (c Count) String() string {
	if !c.Valid {
		return NA
	}
	return strconv.Itoa(c.N)
}

// CountMismatch reports whether both parts and the total are present and
// the parts do not add up. Source pages are not always consistent; callers
// log this as a data-quality observation and keep the values as observed.
func CountMismatch(total, a, b Count) bool {
	if !total.Valid || !a.Valid || !b.Valid {
		return false
	}
	return a.N+b.N != total.N
}
