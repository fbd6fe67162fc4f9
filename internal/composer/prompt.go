package composer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const defaultMaxContextChars = 3000

// Composer assembles the question-answering prompt from the user's question
// and the report data selected as context.
type Composer struct {
	MaxContextChars int
}

// New creates a Composer with the given character budget for injected context.
// If maxContextChars <= 0, the default (3000) is used.
func New(maxContextChars int) *Composer {
	if maxContextChars <= 0 {
		maxContextChars = defaultMaxContextChars
	}
	return &Composer{MaxContextChars: maxContextChars}
}

// Compose builds the prompt. Contexts are taken in order and joined with
// newlines while they fit the budget; a context that does not fit is skipped,
// except the first one, which is cut to the budget instead.
func (c *Composer) Compose(question string, contexts []string) string {
	return fmt.Sprintf("Answer this question: \"%s\" using this GSC data: %s", question, c.buildContext(contexts))
}

func (c *Composer) buildContext(contexts []string) string {
	var sb strings.Builder
	remaining := c.MaxContextChars

	for _, ctx := range contexts {
		if ctx == "" {
			continue
		}
		sep := 0
		if sb.Len() > 0 {
			sep = 1
		}
		n := utf8.RuneCountInString(ctx)
		if n+sep > remaining {
			if sb.Len() == 0 {
				sb.WriteString(Truncate(ctx, remaining))
				remaining = 0
			}
			continue
		}
		if sep == 1 {
			sb.WriteByte('\n')
		}
		sb.WriteString(ctx)
		remaining -= n + sep
	}
	return sb.String()
}

// Truncate returns at most max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
