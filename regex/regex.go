// Package regex converts patterns written in a dialect with \Q...\E
// literal spans into patterns for the database regex engines.
//
//	regex.Literalize(`^\Qa.b\E`, regex.Options{}) // ^a\.b
package regex

import (
	"fmt"
	"strings"
	"unicode"
)

// Options controls literalization.
type Options struct {
	// Extended strips unescaped whitespace and # comments first ("x" flag).
	Extended bool
	// Insensitive requests case insensitive matching ("i" flag). It does not
	// change the pattern; callers pick the matching operator.
	Insensitive bool
	// Multiline and DotAll record the "m" and "s" flags.
	Multiline bool
	DotAll    bool
	// EmbedQuotes doubles single quotes so the result can be embedded in a
	// SQL string literal. Patterns bound as values must not set it.
	EmbedQuotes bool
}

// ParseOptions parses a $options flag string.
func ParseOptions(flags string) (Options, error) {
	var o Options
	for _, c := range flags {
		switch c {
		case 'i':
			o.Insensitive = true
		case 'x':
			o.Extended = true
		case 'm':
			o.Multiline = true
		case 's':
			o.DotAll = true
		default:
			return Options{}, fmt.Errorf("regex: unsupported option %q", c)
		}
	}
	return o, nil
}

// Literalize returns the engine pattern for p. Characters inside \Q...\E
// spans, or after an unterminated \Q, are escaped so they match literally.
// Outside spans the pattern is kept as is, stray \E markers are dropped.
// A trailing unescaped $ stays an anchor, even after an unterminated \Q.
// A pattern without anchors matches anywhere in the value.
func Literalize(p string, opts Options) string {
	if opts.Extended {
		p = StripExtended(p)
	}
	anchored := endAnchored(p)
	if anchored {
		p = p[:len(p)-1]
	}
	var (
		sb     strings.Builder
		rs     = []rune(p)
		inSpan bool
	)
	sb.Grow(len(p))
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if c == '\\' && i+1 < len(rs) {
			switch next := rs[i+1]; {
			case next == 'E':
				inSpan = false
				i++
				continue
			case next == 'Q' && !inSpan:
				inSpan = true
				i++
				continue
			case !inSpan:
				sb.WriteRune(c)
				writeQuoted(&sb, next, opts.EmbedQuotes)
				i++
				continue
			}
		}
		if inSpan {
			writeLiteral(&sb, c, opts.EmbedQuotes)
			continue
		}
		writeQuoted(&sb, c, opts.EmbedQuotes)
	}
	if anchored {
		sb.WriteByte('$')
	}
	return sb.String()
}

// endAnchored reports whether p ends with a $ that is not escaped.
func endAnchored(p string) bool {
	if !strings.HasSuffix(p, "$") {
		return false
	}
	n := 0
	for i := len(p) - 2; i >= 0 && p[i] == '\\'; i-- {
		n++
	}
	return n%2 == 0
}

// writeLiteral writes c escaped to match itself.
func writeLiteral(sb *strings.Builder, c rune, embed bool) {
	switch {
	case c == ' ' || unicode.IsLetter(c) || unicode.IsDigit(c):
		sb.WriteRune(c)
	case c == '\'':
		writeQuoted(sb, c, embed)
	default:
		sb.WriteByte('\\')
		sb.WriteRune(c)
	}
}

func writeQuoted(sb *strings.Builder, c rune, embed bool) {
	if c == '\'' && embed {
		sb.WriteString("''")
		return
	}
	sb.WriteRune(c)
}

// StripExtended removes unescaped whitespace and # comments, including
// comment-only lines, and trims the result.
func StripExtended(p string) string {
	var (
		sb strings.Builder
		rs = []rune(p)
	)
	for i := 0; i < len(rs); i++ {
		c := rs[i]
		switch {
		case c == '\\' && i+1 < len(rs):
			sb.WriteRune(c)
			sb.WriteRune(rs[i+1])
			i++
		case c == '#':
			for i+1 < len(rs) && rs[i+1] != '\n' {
				i++
			}
		case unicode.IsSpace(c):
		default:
			sb.WriteRune(c)
		}
	}
	return strings.TrimSpace(sb.String())
}
