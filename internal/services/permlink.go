package services

import (
	"strings"
	"time"
	"unicode"
)

const (
	maxPermlinkLength = 255
	permlinkTimeFmt   = "20060102t150405.000z"
)

// TopicPermlink derives a permlink from a title, made unique by the
// creation time.
func TopicPermlink(title string, now time.Time) string {
	slug := slugify(title)
	stamp := permlinkStamp(now)
	if slug == "" {
		return "topic-" + stamp
	}
	if max := maxPermlinkLength - len(stamp) - 1; len(slug) > max {
		slug = strings.TrimRight(slug[:max], "-")
	}
	return slug + "-" + stamp
}

// ReplyPermlink names a reply to parentAuthor.
func ReplyPermlink(parentAuthor string, now time.Time) string {
	p := "re-" + slugify(parentAuthor) + "-" + permlinkStamp(now)
	if len(p) > maxPermlinkLength {
		p = p[:maxPermlinkLength]
	}
	return p
}

func permlinkStamp(now time.Time) string {
	return strings.ReplaceAll(now.UTC().Format(permlinkTimeFmt), ".", "")
}

// slugify keeps ASCII letters and digits, lowercased, joined by single dashes.
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
