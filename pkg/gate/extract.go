package gate

import (
	"errors"
	"regexp"
	"strconv"
)

// numberPattern matches an optionally signed integer or decimal, including
// the ".45" form.
var numberPattern = regexp.MustCompile(`[-+]?(?:\d*\.\d+|\d+)`)

// FirstNumber returns the first numeric literal in text, scanning left to
// right. Later numbers are ignored even if they look like the real
// measurement: the first-mentioned value governs.
//
// A literal too large for float64 yields ±Inf rather than being skipped.
func FirstNumber(text string) (float64, bool) {
	token := numberPattern.FindString(text)
	if token == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return v, true
}
