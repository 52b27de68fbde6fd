package swiftsrc

import (
	"regexp"
	"strings"
)

// Declaration keywords in priority order: a `class User` line beats a
// `: User` annotation, which beats a bare mention.
var declKeywords = []string{
	"class", "struct", "enum", "protocol", "func", "var", "let", "typealias", "extension",
}

const accessModifiers = `(?:public\s+|private\s+|internal\s+|fileprivate\s+|open\s+)?`

// FindDeclaration locates the best position of symbol in the given source
// lines, preferring true declarations over type annotations over plain
// word-boundary matches. Returns 0-based (line, character), or (-1, -1)
// when the symbol does not appear outside comments and string literals.
func FindDeclaration(lines []string, symbol string) (int, int) {
	quoted := regexp.QuoteMeta(symbol)

	// Pass 1: declarations, with optional access modifiers.
	for _, kw := range declKeywords {
		re := regexp.MustCompile(accessModifiers + kw + `\s+` + quoted + `\b`)
		for i, line := range lines {
			if isCommentLine(line) || insideStringLiteral(line, symbol) {
				continue
			}
			if loc := re.FindStringIndex(line); loc != nil {
				if pos := strings.Index(line[loc[0]:], symbol); pos >= 0 {
					return i, loc[0] + pos
				}
			}
		}
	}

	// Pass 2: type annotations like `: User`.
	annotation := regexp.MustCompile(`:\s*` + quoted + `\b`)
	for i, line := range lines {
		if isCommentLine(line) {
			continue
		}
		if loc := annotation.FindStringIndex(line); loc != nil {
			if pos := strings.Index(line[loc[0]:], symbol); pos >= 0 {
				return i, loc[0] + pos
			}
		}
	}

	// Pass 3: any word-boundary match.
	word := regexp.MustCompile(`\b` + quoted + `\b`)
	for i, line := range lines {
		if isCommentLine(line) || insideStringLiteral(line, symbol) {
			continue
		}
		if loc := word.FindStringIndex(line); loc != nil {
			return i, loc[0]
		}
	}

	return -1, -1
}

func isCommentLine(line string) bool {
	s := strings.TrimSpace(line)
	return strings.HasPrefix(s, "//") || strings.HasPrefix(s, "/*") || strings.HasPrefix(s, "*")
}

// insideStringLiteral reports whether the first occurrence of symbol on
// the line sits inside a string literal. An odd number of quotes before
// the occurrence means it does. Heuristic only: escaped quotes and
// multi-line strings are not handled.
func insideStringLiteral(line, symbol string) bool {
	idx := strings.Index(line, symbol)
	if idx < 0 {
		return false
	}
	return strings.Count(line[:idx], `"`)%2 == 1
}
