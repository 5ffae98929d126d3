package models

import (
	"strconv"
	"strings"
)

// ParseAsset reads "1.234 BLURT" into amount and symbol. Bad input reads as zero.
func ParseAsset(s string) (float64, string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, ""
	}
	amount, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, ""
	}
	symbol := ""
	if len(fields) > 1 {
		symbol = fields[1]
	}
	return amount, symbol
}
