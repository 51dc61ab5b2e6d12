package unlock

import (
	"strings"

	"github.com/arcanalabs/arcana-server/pkg/config"
)

const ellipsis = "…"

// Previewer produces the locked teaser shown before a reading is paid for.
type Previewer struct {
	short int
	long  int
}

// NewPreviewer constructs a Previewer from the configured preview lengths.
func NewPreviewer(cfg config.UnlockConfig) *Previewer {
	return &Previewer{
		short: cfg.PreviewShort,
		long:  cfg.PreviewLong,
	}
}

// Short returns the compact teaser used on list cards.
func (p *Previewer) Short(text string) string {
	return Preview(text, p.short)
}

// Long returns the extended teaser used on the locked detail screen.
func (p *Previewer) Long(text string) string {
	return Preview(text, p.long)
}

// Preview strips markup and truncates the text to limit characters on a
// rune boundary, appending an ellipsis when anything was cut.
func Preview(text string, limit int) string {
	plain := strings.TrimSpace(StripMarkdown(text))
	if limit <= 0 {
		return plain
	}

	runes := []rune(plain)
	if len(runes) <= limit {
		return plain
	}

	cut := strings.TrimRight(string(runes[:limit]), " \t\n")
	return cut + ellipsis
}

// StripMarkdown removes the markdown markers the generator emits so the
// teaser reads as plain prose.
func StripMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimLeft(line, "#")
		line = strings.TrimPrefix(line, " ")

		if trimmed := strings.TrimSpace(line); trimmed == "---" || trimmed == "***" {
			continue
		}

		b.WriteString(stripInline(line))
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func stripInline(line string) string {
	var b strings.Builder
	b.Grow(len(line))

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch r {
		case '*', '_', '`', '~':
			continue
		case '[':
			// Collapse [label](url) to label.
			closing := indexRuneFrom(runes, i, ']')
			if closing > i && closing+1 < len(runes) && runes[closing+1] == '(' {
				end := indexRuneFrom(runes, closing, ')')
				if end > closing {
					b.WriteString(string(runes[i+1 : closing]))
					i = end
					continue
				}
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func indexRuneFrom(runes []rune, from int, target rune) int {
	for i := from + 1; i < len(runes); i++ {
		if runes[i] == target {
			return i
		}
	}
	return -1
}
