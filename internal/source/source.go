// Package source turns script text into a bash syntax tree.
//
// Chat mention tokens such as <@123> or <:name:456> are quoted before parsing
// so the parser does not read them as redirections.
package source

import (
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/FUFSoB/cli-bot-discord/internal/shellerr"
)

var mention = regexp.MustCompile(`^<(?:@!?|@&|#|a?:\w+:|t:)\d+(?::[tTdDfFR])?>`)

// Parse parses src as a bash script. name is used in error positions.
func Parse(src, name string) (*syntax.File, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(QuoteMentions(src)), name)
	if err != nil {
		return nil, shellerr.Wrap(shellerr.ScriptSyntaxError, err, "parse %s", name)
	}
	return file, nil
}

// QuoteMentions wraps unquoted mention tokens in single quotes.
func QuoteMentions(src string) string {
	if !strings.Contains(src, "<") {
		return src
	}

	var b strings.Builder
	b.Grow(len(src) + 8)

	var inSingle, inDouble, escaped bool
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && !inSingle:
			escaped = true
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case c == '<' && !inSingle && !inDouble:
			if m := mention.FindString(src[i:]); m != "" {
				b.WriteByte('\'')
				b.WriteString(m)
				b.WriteByte('\'')
				i += len(m) - 1
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Quote renders s as a single bash word.
func Quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return q
}
