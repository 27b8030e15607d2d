package enhance

import (
	"regexp"
	"strings"

	"github.com/hyperifyio/tomd/internal/budget"
)

// Chunk is one ordered piece of a document. Sep is the text that joined it to
// the next chunk in the source, and is empty for the last chunk.
type Chunk struct {
	Text string
	Sep  string
}

// Join reassembles texts using the separators recorded on chunks. texts must
// be parallel to chunks.
func Join(chunks []Chunk, texts []string) string {
	var b strings.Builder
	for i, t := range texts {
		b.WriteString(t)
		if i < len(chunks) && i < len(texts)-1 {
			b.WriteString(chunks[i].Sep)
		}
	}
	return b.String()
}

// Split cuts text into chunks of at most limit tokens. Cuts fall between
// paragraphs; a paragraph that alone exceeds limit is cut between sentences.
// Fenced code blocks and single sentences are never cut, so such a unit may
// exceed limit on its own. Joining the chunk texts with their Sep values
// gives back text exactly.
func Split(text string, limit int, counter budget.Counter) []Chunk {
	if counter == nil {
		counter = budget.Heuristic{}
	}
	if text == "" {
		return nil
	}
	var units []unit
	for _, blk := range blocks(text) {
		if blk.code || counter.Count(blk.text) <= limit {
			units = append(units, unit{text: blk.text, sep: blk.sep})
			continue
		}
		units = append(units, sentences(blk.text, blk.sep)...)
	}

	var chunks []Chunk
	cur, pending, open := "", "", false
	for _, u := range units {
		if open {
			if candidate := cur + pending + u.text; counter.Count(candidate) <= limit {
				cur, pending = candidate, u.sep
				continue
			}
			chunks = append(chunks, Chunk{Text: cur, Sep: pending})
		}
		cur, pending, open = u.text, u.sep, true
	}
	if open {
		chunks = append(chunks, Chunk{Text: cur})
	}
	return chunks
}

type unit struct {
	text string
	sep  string
}

type block struct {
	text string
	sep  string
	code bool
}

const paragraphSep = "\n\n"

// blocks splits on blank lines, keeping any fenced code block together.
func blocks(text string) []block {
	parts := strings.Split(text, paragraphSep)
	var out []block
	var buf []string
	inFence, hadFence := false, false
	for _, p := range parts {
		buf = append(buf, p)
		n := fenceCount(p)
		if n > 0 {
			hadFence = true
		}
		if n%2 == 1 {
			inFence = !inFence
		}
		if inFence {
			continue
		}
		out = append(out, block{text: strings.Join(buf, paragraphSep), sep: paragraphSep, code: hadFence})
		buf, hadFence = nil, false
	}
	if len(buf) > 0 {
		// Unterminated fence runs to the end of the document.
		out = append(out, block{text: strings.Join(buf, paragraphSep), sep: paragraphSep, code: true})
	}
	if len(out) > 0 {
		out[len(out)-1].sep = ""
	}
	return out
}

func fenceCount(p string) int {
	n := 0
	for _, line := range strings.Split(p, "\n") {
		l := strings.TrimLeft(line, " ")
		if strings.HasPrefix(l, "```") || strings.HasPrefix(l, "~~~") {
			n++
		}
	}
	return n
}

// sentenceEnd matches terminal punctuation followed by whitespace, or CJK
// terminal punctuation on its own.
var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]*\s+|[。！？]\s*`)

// sentences cuts a paragraph after each sentence. The whitespace following a
// sentence becomes its separator; the final piece carries tail.
func sentences(p, tail string) []unit {
	var out []unit
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(p, -1) {
		end := loc[1]
		body := strings.TrimRightFunc(p[start:end], isSpace)
		if body == "" || end >= len(p) {
			continue
		}
		out = append(out, unit{text: body, sep: p[start+len(body) : end]})
		start = end
	}
	out = append(out, unit{text: p[start:], sep: tail})
	return out
}

func isSpace(r rune) bool { return r == ' ' || r == '\n' || r == '\t' || r == '\r' }
