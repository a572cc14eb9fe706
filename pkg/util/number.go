package util

import (
	"strconv"
	"strings"
)

// ParseFloatDefault parses s as float64; empty input yields def.
func ParseFloatDefault(s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}
