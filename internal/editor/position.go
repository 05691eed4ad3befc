package editor

import (
	"fmt"
	"sort"
	"strings"
)

// Position is a zero-based line and character offset. Character offsets are
// measured in UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Before reports whether p sorts before other.
func (p Position) Before(other Position) bool {
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Character < other.Character
}

// ContentChange replaces Range with Text. All changes of one change event are
// expressed against the document as it was before the event.
type ContentChange struct {
	Range Range  `json:"range"`
	Text  string `json:"text"`
}

// offsetOf converts a position to a byte offset in content, clamping to the
// line and document bounds.
func offsetOf(content string, pos Position) int {
	if pos.Line < 0 {
		return 0
	}

	lineStart := 0
	for line := 0; line < pos.Line; line++ {
		idx := strings.IndexByte(content[lineStart:], '\n')
		if idx < 0 {
			return len(content)
		}
		lineStart += idx + 1
	}

	lineEnd := len(content)
	if idx := strings.IndexByte(content[lineStart:], '\n'); idx >= 0 {
		lineEnd = lineStart + idx
	}

	return lineStart + utf16ToByteOffset(content[lineStart:lineEnd], pos.Character)
}

// utf16ToByteOffset converts a UTF-16 offset to a byte offset within s.
func utf16ToByteOffset(s string, utf16Off int) int {
	if utf16Off <= 0 {
		return 0
	}

	count := 0
	for i, r := range s {
		if count >= utf16Off {
			return i
		}
		if r >= 0x10000 {
			count += 2
		} else {
			count++
		}
	}
	return len(s)
}

// sortChanges returns the changes of one event in ascending document order.
// An insertion sorts before a replacement starting at the same position;
// otherwise ties keep their relative order.
func sortChanges(changes []ContentChange) []ContentChange {
	sorted := append([]ContentChange(nil), changes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Range, sorted[j].Range
		if a.Start != b.Start {
			return a.Start.Before(b.Start)
		}
		return a.End.Before(b.End)
	})
	return sorted
}

// applyChanges applies one change event to content. Changes are resolved
// against the original content and applied from the end of the document
// backwards so earlier offsets stay valid.
func applyChanges(content string, changes []ContentChange) (string, error) {
	type span struct {
		start, end int
		text       string
	}

	spans := make([]span, 0, len(changes))
	for _, c := range sortChanges(changes) {
		if c.Range.End.Before(c.Range.Start) {
			return "", fmt.Errorf("invalid range %v", c.Range)
		}
		spans = append(spans, span{
			start: offsetOf(content, c.Range.Start),
			end:   offsetOf(content, c.Range.End),
			text:  c.Text,
		})
	}

	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return "", fmt.Errorf("overlapping changes")
		}
	}

	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		content = content[:s.start] + s.text + content[s.end:]
	}
	return content, nil
}
