package extract

import "strings"

// Cleaner normalizes extracted text before chunking. PDF extraction in
// particular leaves behind empty lines, hyphenation artifacts and runs of
// whitespace that would otherwise waste embedding tokens.
type Cleaner struct {
	RemoveEmptyLines      bool
	RemoveExtraWhitespace bool
}

// NewCleaner returns a cleaner with both normalizations enabled.
func NewCleaner() *Cleaner {
	return &Cleaner{RemoveEmptyLines: true, RemoveExtraWhitespace: true}
}

// Clean applies the configured normalizations. Cleaning is pure and
// deterministic; chunk offsets refer to the cleaned text.
func (c *Cleaner) Clean(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		if c.RemoveExtraWhitespace {
			line = strings.Join(strings.Fields(line), " ")
		} else {
			line = strings.TrimRight(line, " \t")
		}
		if c.RemoveEmptyLines && line == "" {
			continue
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
