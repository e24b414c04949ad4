package generator

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyReply is returned when the model produced only whitespace.
var ErrEmptyReply = errors.New("model returned empty reply")

var titleRe = regexp.MustCompile(`(?m)^#{1,2}\s+(.+)$`)

// CleanReply trims raw model output and rejects blank replies.
func CleanReply(raw string) (string, error) {
	md := strings.TrimSpace(raw)
	if md == "" {
		return "", ErrEmptyReply
	}
	return md, nil
}

// ExtractTitle returns the first level-1 or level-2 heading of md.
func ExtractTitle(md string) string {
	m := titleRe.FindStringSubmatch(md)
	if len(m) >= 2 {
		return strings.TrimSpace(strings.Trim(m[1], "*_ "))
	}
	return ""
}

// Digest returns the first paragraph after headings, or the start of the
// whole text, truncated to limit bytes.
func Digest(md string, limit int) string {
	if d := firstParagraph(md); d != "" {
		return truncate(d, limit)
	}
	return truncate(strings.Join(strings.Fields(md), " "), limit)
}

func firstParagraph(md string) string {
	lines := strings.Split(md, "\n")
	var b strings.Builder
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		if strings.TrimSpace(line) == "" {
			if b.Len() > 0 {
				break
			}
			continue
		}
		b.WriteString(strings.TrimSpace(line))
		break
	}
	return b.String()
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
