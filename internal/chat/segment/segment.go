// Package segment splits message text into prose and fenced code spans for display.
package segment

import (
	"iter"
	"regexp"
	"strings"
)

// Kind is the type of a Span.
type Kind int

const (
	KindText Kind = iota
	KindCode
)

func (k Kind) String() string {
	if k == KindCode {
		return "code"
	}
	return "text"
}

// Span is a contiguous piece of a message. Language is only set on code spans
// whose opening fence carried a tag.
type Span struct {
	Kind     Kind
	Language string
	Body     string
}

// fencePattern matches ```lang\n ... ``` with a non-greedy body so the first
// closing fence ends the block. Fences are not nested. Tags are word
// characters in any script.
var fencePattern = regexp.MustCompile("(?s)```([\\p{L}\\p{N}_]+)?\\n(.*?)```")

// Spans returns the spans of input in left-to-right order. The sequence is
// computed lazily and can be ranged over any number of times.
//
// Text regions that are empty after trimming are dropped; the remaining ones
// are emitted trimmed. An unterminated fence is plain text.
func Spans(input string) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		pos := 0
		for pos < len(input) {
			m := fencePattern.FindStringSubmatchIndex(input[pos:])
			if m == nil {
				break
			}

			if before := strings.TrimSpace(input[pos : pos+m[0]]); before != "" {
				if !yield(Span{Kind: KindText, Body: before}) {
					return
				}
			}

			code := Span{Kind: KindCode, Body: input[pos+m[4] : pos+m[5]]}
			if m[2] >= 0 {
				code.Language = input[pos+m[2] : pos+m[3]]
			}
			if !yield(code) {
				return
			}
			pos += m[1]
		}

		if rest := strings.TrimSpace(input[pos:]); rest != "" {
			yield(Span{Kind: KindText, Body: rest})
		}
	}
}

// Split collects Spans(input) into a slice.
func Split(input string) []Span {
	var spans []Span
	for s := range Spans(input) {
		spans = append(spans, s)
	}
	return spans
}

// Join renders spans back to markdown, restoring the fences and language tags
// and separating neighbouring spans with a single newline. For text whose
// prose regions carry no surrounding whitespace besides that newline,
// Join(Split(s)) == s.
func Join(spans []Span) string {
	var b strings.Builder
	for i, s := range spans {
		if i > 0 {
			b.WriteByte('\n')
		}
		if s.Kind == KindCode {
			b.WriteString("```")
			b.WriteString(s.Language)
			b.WriteByte('\n')
			b.WriteString(s.Body)
			b.WriteString("```")
			continue
		}
		b.WriteString(s.Body)
	}
	return b.String()
}

// HasCode reports whether input contains at least one complete fenced block.
func HasCode(input string) bool {
	return fencePattern.MatchString(input)
}
