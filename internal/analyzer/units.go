package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// Canonical units: linear dimensions in millimeters, power in kilowatts.
// Values whose unit cannot be resolved are flagged ambiguous_unit by the
// calling plugin rather than guessed.

const (
	mmPerInch = 25.4
	mmPerFoot = 304.8

	kwPerHP   = 0.7457
	kwPerBTUH = 0.000293071
	kwPerMBH  = 0.293071 // MBH = 1000 BTU/h
)

var measureRe = regexp.MustCompile(`(?i)^\s*([\d,]+(?:\.\d+)?)\s*("|''|in\.?|inch(?:es)?|ft\.?|feet|foot|'|mm|cm|m|kw|mw|w|hp|btuh?|btu/h|mbh)?\s*$`)

// parseNumber parses a decimal that may contain thousands separators.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLengthMM parses a linear measurement with its unit and returns the
// value in millimeters. ok is false when the text carries no recognizable
// length unit; the caller decides whether that is an ambiguous_unit.
func ParseLengthMM(s string) (float64, bool) {
	m := measureRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, numOK := parseNumber(m[1])
	if !numOK {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSuffix(m[2], ".")) {
	case `"`, `''`, "in", "inch", "inches":
		return v * mmPerInch, true
	case "'", "ft", "feet", "foot":
		return v * mmPerFoot, true
	case "mm":
		return v, true
	case "cm":
		return v * 10, true
	case "m":
		return v * 1000, true
	}
	return 0, false
}

// ParsePowerKW parses a power measurement with its unit and returns the
// value in kilowatts. Refrigeration tonnage is deliberately not accepted
// here; cooling capacity stays in tons as a named field.
func ParsePowerKW(s string) (float64, bool) {
	m := measureRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, numOK := parseNumber(m[1])
	if !numOK {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSuffix(m[2], ".")) {
	case "kw":
		return v, true
	case "mw":
		return v * 1000, true
	case "w":
		return v / 1000, true
	case "hp":
		return v * kwPerHP, true
	case "btu", "btuh", "btu/h":
		return v * kwPerBTUH, true
	case "mbh":
		return v * kwPerMBH, true
	}
	return 0, false
}

// wordNumbers maps spelled-out counts that show up in specification prose
// ("Four AHUs", "Two boilers").
var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

// parseCount parses either a digit string or a spelled-out small number.
func parseCount(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, ok := wordNumbers[s]; ok {
		return n, true
	}
	v, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
