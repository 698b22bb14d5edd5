package parser

import (
	"strings"
	"unicode"

	"github.com/TFMV/crossplan/pkg/plan"
)

// The MySQL grammar behind the front end has no FULL JOIN production, so the
// raw SQL is pre-processed: every FULL [OUTER] JOIN becomes a LEFT JOIN and
// the table named to its right is recorded. After lowering, left joins whose
// right side matches a recorded name are flipped back to full joins.
type fullJoinMark struct {
	// table is the lowercased right-side table name; alias its lowercased
	// alias when one follows, otherwise empty.
	table string
	alias string
}

// rewriteFullJoins replaces FULL [OUTER] JOIN outside string literals,
// quoted identifiers, and comments, returning the rewritten SQL plus one
// mark per replacement in textual order.
func rewriteFullJoins(sql string) (string, []fullJoinMark) {
	toks := scanWords(sql)

	var marks []fullJoinMark
	var out strings.Builder
	last := 0
	for i := 0; i < len(toks); i++ {
		if !strings.EqualFold(toks[i].text, "FULL") {
			continue
		}
		j := i + 1
		if j < len(toks) && strings.EqualFold(toks[j].text, "OUTER") {
			j++
		}
		if j >= len(toks) || !strings.EqualFold(toks[j].text, "JOIN") {
			continue
		}

		// Replace the span FULL..JOIN with LEFT JOIN.
		out.WriteString(sql[last:toks[i].start])
		out.WriteString("LEFT JOIN")
		last = toks[j].end

		marks = append(marks, markFor(toks, j+1))
		i = j
	}
	if len(marks) == 0 {
		return sql, nil
	}
	out.WriteString(sql[last:])
	return out.String(), marks
}

func markFor(toks []wordToken, at int) fullJoinMark {
	var m fullJoinMark
	if at >= len(toks) {
		return m
	}
	m.table = strings.ToLower(unquoteIdent(toks[at].text))

	// Optional [AS] alias before ON/USING or the next join keyword.
	next := at + 1
	if next < len(toks) && strings.EqualFold(toks[next].text, "AS") {
		next++
	}
	if next < len(toks) {
		switch strings.ToUpper(toks[next].text) {
		case "ON", "USING", "LEFT", "RIGHT", "INNER", "FULL", "CROSS", "JOIN",
			"WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "UNION", "WINDOW":
		default:
			m.alias = strings.ToLower(unquoteIdent(toks[next].text))
		}
	}
	return m
}

// rightSideNames extracts the lookup names of a lowered join operand.
func rightSideNames(n plan.Node) (table, alias string) {
	switch t := n.(type) {
	case *plan.TableScan:
		return t.Table, t.Alias
	case *plan.SubqueryScan:
		return t.Alias, t.Alias
	}
	return "", ""
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}

type wordToken struct {
	text  string
	start int
	end   int
}

// scanWords tokenizes identifiers and keywords, skipping string literals,
// quoted identifiers' interiors are kept as single tokens, and comments are
// dropped entirely.
func scanWords(sql string) []wordToken {
	var toks []wordToken
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			start := i
			i++
			for i < n {
				if sql[i] == c {
					if i+1 < n && sql[i+1] == c { // doubled quote escape
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			if c != '\'' { // quoted identifier
				toks = append(toks, wordToken{text: sql[start:i], start: start, end: i})
			}
		case c == '[':
			start := i
			for i < n && sql[i] != ']' {
				i++
			}
			if i < n {
				i++
			}
			toks = append(toks, wordToken{text: sql[start:i], start: start, end: i})
		case c == '-' && i+1 < n && sql[i+1] == '-':
			for i < n && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			if i > n {
				i = n
			}
		case isWordByte(c):
			start := i
			for i < n && isWordByte(sql[i]) {
				i++
			}
			toks = append(toks, wordToken{text: sql[start:i], start: start, end: i})
		default:
			i++
		}
	}
	return toks
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' ||
		unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}
