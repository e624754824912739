package document

import (
	"strings"
	"unicode/utf8"
)

const paragraphSeparator = "\n\n"

// Chunk is one inference-call-sized slice of normalized text.
type Chunk struct {
	Index int
	Text  string
}

// Len is the chunk length in characters.
func (c Chunk) Len() int { return utf8.RuneCountInString(c.Text) }

// SplitIntoChunks packs paragraphs greedily into chunks of at most maxChars
// characters. A paragraph longer than maxChars becomes its own chunk and is
// never cut. Blank input yields no chunks.
func SplitIntoChunks(text string, maxChars int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return []Chunk{{Index: 0, Text: text}}
	}

	var (
		out    []Chunk
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen == 0 {
			return
		}
		out = append(out, Chunk{Index: len(out), Text: cur.String()})
		cur.Reset()
		curLen = 0
	}

	sepLen := utf8.RuneCountInString(paragraphSeparator)
	for _, p := range splitParagraphs(text) {
		pLen := utf8.RuneCountInString(p)
		if pLen > maxChars {
			flush()
			out = append(out, Chunk{Index: len(out), Text: p})
			continue
		}
		if curLen > 0 && curLen+sepLen+pLen > maxChars {
			flush()
		}
		if curLen > 0 {
			cur.WriteString(paragraphSeparator)
			curLen += sepLen
		}
		cur.WriteString(p)
		curLen += pLen
	}
	flush()
	return out
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, paragraphSeparator)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
