package datasrc

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// FormatQuery builds a driver-safe query from literal fragments with
// interleaved values: fragments are concatenated with one '?' placeholder per
// value, in left-to-right order. The placeholder count always equals the
// value count. len(fragments) must be len(values)+1.
func FormatQuery(fragments []string, values ...any) (string, []any, error) {
	if len(fragments) != len(values)+1 {
		return "", nil, fmt.Errorf("datasrc: format: %d fragments cannot interleave %d values", len(fragments), len(values))
	}
	var b strings.Builder
	for i, frag := range fragments {
		b.WriteString(frag)
		if i < len(values) {
			b.WriteByte('?')
		}
	}
	args := make([]any, len(values))
	copy(args, values)
	return b.String(), args, nil
}

// InlineQuery concatenates fragments with the values rendered as SQL
// literals. It exists solely for multi-statement batches, which cannot bind
// positional parameters across statements, and must never be used with
// untrusted input.
func InlineQuery(fragments []string, values ...any) (string, error) {
	if len(fragments) != len(values)+1 {
		return "", fmt.Errorf("datasrc: inline: %d fragments cannot interleave %d values", len(fragments), len(values))
	}
	var b strings.Builder
	for i, frag := range fragments {
		b.WriteString(frag)
		if i < len(values) {
			b.WriteString(inlineLiteral(values[i]))
		}
	}
	return b.String(), nil
}

// BindNamed resolves :name placeholders against a struct (db tags) or
// map[string]any, expanding slice values for IN clauses, and rebinds to
// MySQL's '?' style.
func BindNamed(query string, arg any) (string, []any, error) {
	bound, args, err := sqlx.Named(query, arg)
	if err != nil {
		return "", nil, fmt.Errorf("datasrc: bind named: %w", err)
	}
	bound, args, err = sqlx.In(bound, args...)
	if err != nil {
		return "", nil, fmt.Errorf("datasrc: bind named: %w", err)
	}
	return sqlx.Rebind(sqlx.QUESTION, bound), args, nil
}

func inlineLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return quoteLiteral(x)
	case []byte:
		return fmt.Sprintf("x'%x'", x)
	case time.Time:
		return quoteLiteral(x.Format("2006-01-02 15:04:05.999999"))
	case fmt.Stringer:
		return quoteLiteral(x.String())
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprintf("%v", x)
	default:
		return quoteLiteral(fmt.Sprintf("%v", x))
	}
}

// quoteLiteral renders a single-quoted MySQL string literal, escaping both
// quotes and backslashes.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return "'" + s + "'"
}
