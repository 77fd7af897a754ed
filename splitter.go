package datasrc

import (
	"strings"
)

// SplitStatements tokenizes a SQL blob into individually executable
// statements. Statements are separated by ';' except where the separator
// falls inside a single- or double-quoted string, after a backslash escape,
// inside a $tag$ ... $tag$ block, or inside a BEGIN ... END block. Lines
// whose trimmed content starts with "--" are dropped from each emitted
// statement, and statements that are empty after stripping are discarded.
func SplitStatements(blob string) []string {
	var (
		stmts      []string
		cur        strings.Builder
		inSingle   bool
		inDouble   bool
		escaped    bool
		blockDepth int
	)

	emit := func() {
		if s, ok := cleanStatement(cur.String()); ok {
			stmts = append(stmts, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(blob); {
		ch := blob[i]

		// A backslash escapes exactly the next character, inside or
		// outside quotes.
		if escaped {
			cur.WriteByte(ch)
			escaped = false
			i++
			continue
		}
		if ch == '\\' {
			cur.WriteByte(ch)
			escaped = true
			i++
			continue
		}

		if inSingle {
			if ch == '\'' {
				inSingle = false
			}
			cur.WriteByte(ch)
			i++
			continue
		}
		if inDouble {
			if ch == '"' {
				inDouble = false
			}
			cur.WriteByte(ch)
			i++
			continue
		}

		switch ch {
		case '\'':
			inSingle = true
			cur.WriteByte(ch)
			i++
		case '"':
			inDouble = true
			cur.WriteByte(ch)
			i++
		case '$':
			if end, ok := scanDollarBlock(blob, i); ok {
				cur.WriteString(blob[i:end])
				i = end
				continue
			}
			cur.WriteByte(ch)
			i++
		case ';':
			if blockDepth > 0 {
				cur.WriteByte(ch)
				i++
				continue
			}
			emit()
			i++
		default:
			if n := matchKeyword(blob, i, "BEGIN"); n > 0 {
				blockDepth++
				cur.WriteString(blob[i : i+n])
				i += n
				continue
			}
			if n := matchKeyword(blob, i, "END"); n > 0 {
				if blockDepth > 0 {
					blockDepth--
				}
				cur.WriteString(blob[i : i+n])
				i += n
				continue
			}
			cur.WriteByte(ch)
			i++
		}
	}
	emit()
	return stmts
}

// cleanStatement drops "--" comment lines and surrounding whitespace. The
// second return is false when nothing remains.
func cleanStatement(raw string) (string, bool) {
	lines := strings.Split(raw, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	s := strings.TrimSpace(strings.Join(kept, "\n"))
	return s, s != ""
}

// scanDollarBlock matches $tag$ ... $tag$ starting at i (blob[i] == '$').
// The tag may be empty. It returns the index just past the closing tag; if
// the block never closes the rest of the blob is consumed as one unit.
func scanDollarBlock(blob string, i int) (int, bool) {
	j := i + 1
	for j < len(blob) && isTagChar(blob[j]) {
		j++
	}
	if j >= len(blob) || blob[j] != '$' {
		return 0, false
	}
	tag := blob[i : j+1]
	rest := blob[j+1:]
	idx := strings.Index(rest, tag)
	if idx < 0 {
		return len(blob), true
	}
	return j + 1 + idx + len(tag), true
}

func isTagChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// matchKeyword reports the keyword length when blob[i:] starts with the
// keyword (case-insensitive) at a token boundary on both sides, else 0.
func matchKeyword(blob string, i int, kw string) int {
	if i > 0 && isWordChar(blob[i-1]) {
		return 0
	}
	if i+len(kw) > len(blob) {
		return 0
	}
	if !strings.EqualFold(blob[i:i+len(kw)], kw) {
		return 0
	}
	if i+len(kw) < len(blob) && isWordChar(blob[i+len(kw)]) {
		return 0
	}
	return len(kw)
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
