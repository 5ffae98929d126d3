package utils

import (
	"strconv"
	"strings"
)

// StringToInt converts string to int, returns 0 if error
func StringToInt(s string) int {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return i
}

// PageNumber parses a 1-based page query value, falling back to 1
func PageNumber(s string) int {
	if p := StringToInt(s); p > 0 {
		return p
	}
	return 1
}

// Paginate returns the bounds of page (1-based) over total items, clamping
// page into range, plus the number of pages.
func Paginate(total, page, perPage int) (start, end, current, pages int) {
	if perPage <= 0 {
		perPage = 20
	}
	pages = (total + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}
	current = page
	if current < 1 {
		current = 1
	}
	if current > pages {
		current = pages
	}
	start = (current - 1) * perPage
	end = start + perPage
	if end > total {
		end = total
	}
	if start > total {
		start = total
	}
	return start, end, current, pages
}
