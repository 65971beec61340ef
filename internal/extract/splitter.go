package extract

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, and as a
// last resort single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter cuts text into pieces of at most Size runes, with consecutive
// pieces sharing up to Overlap runes of context.
type Splitter struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewSplitter returns a Splitter using DefaultSeparators. An overlap that is
// not smaller than size is clamped.
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return Splitter{Size: size, Overlap: overlap, Separators: DefaultSeparators}
}

// Split returns the non-empty chunks of text in document order.
func (s Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	var out []string
	for _, c := range s.split(text, seps) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func (s Splitter) split(text string, seps []string) []string {
	sep := seps[len(seps)-1]
	var rest []string
	for i, candidate := range seps {
		if candidate == "" {
			sep = ""
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			rest = seps[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		parts = runeGroups(text, s.Size)
	} else {
		parts = strings.Split(text, sep)
	}

	var chunks, pending []string
	for _, p := range parts {
		if runeLen(p) <= s.Size {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, runeGroups(p, s.Size)...)
		} else {
			chunks = append(chunks, s.split(p, rest)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending, sep)...)
	}
	return chunks
}

// merge packs parts greedily into chunks no longer than Size. When a chunk
// is emitted, its tail is carried into the next one until at most Overlap
// runes remain.
func (s Splitter) merge(parts []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		chunks  []string
		current []string
		total   int
	)
	for _, p := range parts {
		n := runeLen(p)
		if total+n+sepLen*len(current) > s.Size && len(current) > 0 {
			if c := strings.TrimSpace(strings.Join(current, sep)); c != "" {
				chunks = append(chunks, c)
			}
			for len(current) > 0 &&
				(total > s.Overlap || total+n+sepLen*len(current) > s.Size) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if c := strings.TrimSpace(strings.Join(current, sep)); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

// runeGroups cuts s into consecutive groups of at most n runes.
func runeGroups(s string, n int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > n {
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
