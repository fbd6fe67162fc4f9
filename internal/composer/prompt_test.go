package composer

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestCompose_Format(t *testing.T) {
	c := New(3000)
	got := c.Compose("top pages?", []string{`[{"keys":["/a"]}]`})
	assert.Equal(t, `Answer this question: "top pages?" using this GSC data: [{"keys":["/a"]}]`, got)
}

func TestCompose_EmptyContext(t *testing.T) {
	got := New(0).Compose("anything", nil)
	assert.Equal(t, `Answer this question: "anything" using this GSC data: `, got)
}

func TestCompose_QuestionKeptVerbatim(t *testing.T) {
	got := New(10).Compose(`say "hi"`, nil)
	assert.True(t, strings.HasPrefix(got, `Answer this question: "say "hi""`), got)
}

func TestCompose_TruncatesSingleContext(t *testing.T) {
	long := strings.Repeat("x", 5000)
	c := New(3000)
	got := c.buildContext([]string{long})
	assert.Equal(t, 3000, len(got))
}

func TestCompose_SkipsEntriesOverBudget(t *testing.T) {
	c := New(12)
	got := c.buildContext([]string{"aaaa", strings.Repeat("b", 20), "cccc"})
	assert.Equal(t, "aaaa\ncccc", got)
}

func TestCompose_DefaultBudget(t *testing.T) {
	assert.Equal(t, 3000, New(-1).MaxContextChars)
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := "héllo wörld"
	got := Truncate(s, 4)
	assert.Equal(t, "héll", got)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, s, Truncate(s, 100))
	assert.Equal(t, "", Truncate(s, 0))
}
