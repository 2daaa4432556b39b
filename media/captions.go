package media

import (
	"regexp"
	"strings"
)

const (
	hookShare      = 0.15
	hookGroupSize  = 2
	mainGroupSize  = 3
	captionOffsetY = 180
	captionHeight  = 150
)

var (
	tagPattern        = regexp.MustCompile(`\[.*?\]`)
	quoteReplacer     = strings.NewReplacer(`"`, "", `'`, "", "“", "", "”", "", "‘", "", "’", "", "«", "", "»", "")
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Caption is one timed word group.
type Caption struct {
	Text  string
	Start float64
	End   float64
	Hook  bool
}

// CleanSubtitleText drops delivery tags and quote characters and collapses
// all whitespace to single spaces.
func CleanSubtitleText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = quoteReplacer.Replace(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// splitHook removes a leading hook line from text and returns both parts
// cleaned. An empty hook leaves the whole text as the main part.
func splitHook(text, hook string) (string, string) {
	hook = strings.TrimSpace(hook)
	body := strings.TrimSpace(text)
	if hook != "" {
		body = strings.TrimPrefix(body, hook)
	}
	return CleanSubtitleText(hook), CleanSubtitleText(body)
}

func groupWords(text string, size int) []string {
	words := strings.Fields(text)
	var out []string
	for i := 0; i < len(words); i += size {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		out = append(out, strings.Join(words[i:end], " "))
	}
	return out
}

// SplitCaptions lays the cleaned text out across total seconds. The hook,
// when given, gets a short share of the timeline in small groups; the rest
// is spread evenly over the remainder in larger groups.
func SplitCaptions(text, hook string, total float64) []Caption {
	if total <= 0 {
		return nil
	}
	hook, main := splitHook(text, hook)
	hookGroups := groupWords(hook, hookGroupSize)
	mainGroups := groupWords(main, mainGroupSize)
	if len(hookGroups)+len(mainGroups) == 0 {
		return nil
	}

	hookSpan := 0.0
	if len(hookGroups) > 0 {
		hookSpan = total * hookShare
		if len(mainGroups) == 0 {
			hookSpan = total
		}
	}
	mainSpan := total - hookSpan

	out := make([]Caption, 0, len(hookGroups)+len(mainGroups))
	t := 0.0
	for i, g := range hookGroups {
		step := hookSpan / float64(len(hookGroups))
		end := t + step
		if i == len(hookGroups)-1 {
			end = hookSpan
		}
		out = append(out, Caption{Text: g, Start: t, End: end, Hook: true})
		t = end
	}
	for i, g := range mainGroups {
		step := mainSpan / float64(len(mainGroups))
		end := t + step
		if i == len(mainGroups)-1 {
			end = total
		}
		out = append(out, Caption{Text: g, Start: t, End: end})
		t = end
	}
	return out
}
