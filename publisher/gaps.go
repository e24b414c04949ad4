package publisher

import (
	"fmt"
	"strings"
)

// GapReport compares a transcript against a chapter's planned key topics.
type GapReport struct {
	CoveredTopics []string `json:"covered_topics"`
	MissingTopics []string `json:"missing_topics"`
	// NewTopics is reserved for topics found in the transcript but absent
	// from the plan; keyword matching cannot detect them.
	NewTopics []string `json:"new_topics"`
	Summary   string   `json:"summary"`
}

// AnalyzeGaps reports which planned topics the transcript mentions,
// matching each topic case-insensitively as a substring.
func AnalyzeGaps(topics []string, transcript string) GapReport {
	r := GapReport{CoveredTopics: []string{}, MissingTopics: []string{}, NewTopics: []string{}}
	lower := strings.ToLower(transcript)
	for _, topic := range topics {
		t := strings.TrimSpace(topic)
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			r.CoveredTopics = append(r.CoveredTopics, t)
		} else {
			r.MissingTopics = append(r.MissingTopics, t)
		}
	}
	total := len(r.CoveredTopics) + len(r.MissingTopics)
	switch {
	case total == 0:
		r.Summary = "No key topics were planned for this chapter."
	case len(r.MissingTopics) == 0:
		r.Summary = fmt.Sprintf("All %d planned topics are covered.", total)
	default:
		r.Summary = fmt.Sprintf("Missing %d of %d planned topics: %s.",
			len(r.MissingTopics), total, strings.Join(r.MissingTopics, ", "))
	}
	return r
}
