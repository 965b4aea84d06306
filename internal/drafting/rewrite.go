package drafting

import (
	"fmt"
	"regexp"
	"strings"
)

// Rewrite goals.
const (
	GoalLessCoercive = "less_coercive"
	GoalClearer      = "clearer"
)

type UnknownGoalError struct {
	Goal string
}

func (e *UnknownGoalError) Error() string {
	return fmt.Sprintf("unknown rewrite goal %q", e.Goal)
}

type replacement struct {
	pattern *regexp.Regexp
	with    string
}

var coerciveReplacements = []replacement{
	{regexp.MustCompile(`(?i)\bmust participate\b`), "are invited to participate"},
	{regexp.MustCompile(`(?i)\brequired to participate\b`), "welcome to participate"},
	{regexp.MustCompile(`(?i)\byou must\b`), "you may choose to"},
	{regexp.MustCompile(`(?i)\bmandatory\b`), "optional"},
	{regexp.MustCompile(`(?i)\bfailure to participate\b`), "choosing not to participate"},
	{regexp.MustCompile(`(?i)\bexpected to participate\b`), "invited to participate"},
}

var plainLanguage = []replacement{
	{regexp.MustCompile(`(?i)\butilize\b`), "use"},
	{regexp.MustCompile(`(?i)\bcommence\b`), "start"},
	{regexp.MustCompile(`(?i)\bterminate\b`), "end"},
	{regexp.MustCompile(`(?i)\bprior to\b`), "before"},
	{regexp.MustCompile(`(?i)\bsubsequent to\b`), "after"},
	{regexp.MustCompile(`(?i)\bin the event that\b`), "if"},
	{regexp.MustCompile(`(?i)\bfor the purpose of\b`), "to"},
	{regexp.MustCompile(`(?i)\bnotwithstanding\b`), "despite"},
}

// RewriteFallback applies the deterministic rule-based rewrite. It is also
// the degraded path when no text-generation backend is configured.
func RewriteFallback(text, goal string) (string, error) {
	switch goal {
	case GoalLessCoercive:
		return rewriteLessCoercive(text), nil
	case GoalClearer:
		return rewriteClearer(text), nil
	default:
		return "", &UnknownGoalError{Goal: goal}
	}
}

func rewriteLessCoercive(text string) string {
	out := text
	for _, r := range coerciveReplacements {
		out = r.pattern.ReplaceAllString(out, r.with)
	}
	lower := strings.ToLower(out)
	if !strings.Contains(lower, "voluntary") {
		out = strings.TrimRight(out, "\n") + "\n\nParticipation is completely voluntary."
	}
	if !strings.Contains(lower, "without penalty") {
		out = strings.TrimRight(out, "\n") + "\nYou may withdraw at any time without penalty."
	}
	return out
}

func rewriteClearer(text string) string {
	out := text
	for _, r := range plainLanguage {
		out = r.pattern.ReplaceAllString(out, r.with)
	}
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 220 {
			lines = append(lines, splitLongLine(line))
		} else {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// splitLongLine breaks an overlong line at sentence boundaries so each
// sentence stands alone.
func splitLongLine(line string) string {
	parts := strings.SplitAfter(line, ". ")
	if len(parts) < 2 {
		return line
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "\n")
}
