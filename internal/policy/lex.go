package policy

import (
	"strings"
	"unicode/utf8"
)

// Token kinds produced by the lexer. String literals, comments, dollar-quoted
// bodies and positional parameters are consumed silently so their contents can
// never be mistaken for statement structure.
type tokenKind int

const (
	tokWord        tokenKind = iota // bare keyword or identifier, text uppercased
	tokQuotedIdent                  // "double quoted" identifier, text raw
	tokPunct                        // single-rune punctuation or operator
)

type token struct {
	kind tokenKind
	text string
}

// lexer walks SQL text skipping whitespace, line and nested block comments,
// string literals (including E'...' escape strings), dollar-quoted bodies and
// $N parameters. It follows Postgres lexical rules with
// standard_conforming_strings on. Where the rules are ambiguous it errs toward
// seeing more statement structure, which keeps misclassification on the deny
// side.
type lexer struct {
	src string
	pos int
}

func newLexer(src string) *lexer { return &lexer{src: src} }

func (l *lexer) peek(n int) byte {
	if l.pos+n < len(l.src) {
		return l.src[l.pos+n]
	}
	return 0
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '-' && l.peek(1) == '-':
			l.skipLineComment()
		case c == '/' && l.peek(1) == '*':
			l.skipBlockComment()
		case c == '\'':
			l.pos++
			l.skipQuoted('\'', false)
		case c == '"':
			return l.scanQuotedIdent(), true
		case c == '$':
			if tok, emit := l.scanDollar(); emit {
				return tok, true
			}
		case isWordStart(c):
			if tok, emit := l.scanWord(); emit {
				return tok, true
			}
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			l.pos += size
			return token{kind: tokPunct, text: string(r)}, true
		}
	}
	return token{}, false
}

func (l *lexer) skipLineComment() {
	for l.pos < len(l.src) && l.src[l.pos] != '\n' {
		l.pos++
	}
}

// skipBlockComment consumes a /* ... */ comment. Postgres block comments nest.
func (l *lexer) skipBlockComment() {
	l.pos += 2
	depth := 1
	for l.pos < len(l.src) && depth > 0 {
		switch {
		case l.src[l.pos] == '/' && l.peek(1) == '*':
			depth++
			l.pos += 2
		case l.src[l.pos] == '*' && l.peek(1) == '/':
			depth--
			l.pos += 2
		default:
			l.pos++
		}
	}
}

// skipQuoted consumes a quoted region whose opening quote is already consumed.
// A doubled quote is an escaped quote, not a terminator. When backslash is
// true (E'...' strings) a backslash escapes the next byte. Unterminated
// regions run to end of input.
func (l *lexer) skipQuoted(quote byte, backslash bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case backslash && c == '\\':
			l.pos += 2
		case c == quote && l.peek(1) == quote:
			l.pos += 2
		case c == quote:
			l.pos++
			return
		default:
			l.pos++
		}
	}
}

func (l *lexer) scanQuotedIdent() token {
	start := l.pos + 1
	l.pos++
	l.skipQuoted('"', false)
	end := l.pos
	if end > start && l.src[end-1] == '"' {
		end--
	}
	return token{kind: tokQuotedIdent, text: l.src[start:end]}
}

// scanDollar handles the three meanings of '$': a positional parameter ($1),
// a dollar-quoted literal ($tag$ ... $tag$) and a bare operator character.
// Only the last produces a token.
func (l *lexer) scanDollar() (token, bool) {
	rest := l.src[l.pos+1:]

	if len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.pos++
		}
		return token{}, false
	}

	i := 0
	for i < len(rest) && isTagChar(rest[i]) {
		i++
	}
	if i < len(rest) && rest[i] == '$' {
		tag := l.src[l.pos : l.pos+i+2] // "$tag$" including both dollars
		body := l.src[l.pos+len(tag):]
		if idx := strings.Index(body, tag); idx >= 0 {
			l.pos += len(tag) + idx + len(tag)
		} else {
			l.pos = len(l.src)
		}
		return token{}, false
	}

	l.pos++
	return token{kind: tokPunct, text: "$"}, true
}

// scanWord reads an identifier or keyword. A lone E or e directly followed by
// a quote is the prefix of an escape string literal and is consumed with it.
func (l *lexer) scanWord() (token, bool) {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) && isWordCont(l.src[l.pos]) {
		l.pos++
	}
	word := l.src[start:l.pos]
	if len(word) == 1 && (word[0] == 'e' || word[0] == 'E') && l.pos < len(l.src) && l.src[l.pos] == '\'' {
		l.pos++
		l.skipQuoted('\'', true)
		return token{}, false
	}
	return token{kind: tokWord, text: strings.ToUpper(word)}, true
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isWordStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isWordCont(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9' || c == '$'
}

// isTagChar matches the characters allowed inside a dollar-quote tag. Unlike
// identifiers a tag cannot contain '$', which is what terminates it.
func isTagChar(c byte) bool {
	return isWordStart(c) || c >= '0' && c <= '9'
}

// multiStatement reports whether sql contains more than one top-level
// statement. Trailing semicolons and semicolons separated only by whitespace
// or comments do not count; anything inside strings, comments or dollar
// quotes never does.
func multiStatement(sql string) bool {
	l := newLexer(sql)
	groups := 0
	inGroup := false
	for {
		tok, ok := l.next()
		if !ok {
			return false
		}
		if tok.kind == tokPunct && tok.text == ";" {
			inGroup = false
			continue
		}
		if !inGroup {
			inGroup = true
			groups++
			if groups > 1 {
				return true
			}
		}
	}
}

// hasTopLevelWhere reports a WHERE keyword outside any parentheses, i.e. one
// belonging to the outermost statement rather than a subquery or CTE body.
func hasTopLevelWhere(sql string) bool {
	l := newLexer(sql)
	depth := 0
	for {
		tok, ok := l.next()
		if !ok {
			return false
		}
		switch {
		case tok.kind == tokPunct && tok.text == "(":
			depth++
		case tok.kind == tokPunct && tok.text == ")":
			if depth > 0 {
				depth--
			}
		case tok.kind == tokWord && tok.text == "WHERE" && depth == 0:
			return true
		}
	}
}

// hasTopLevelInto reports an INTO keyword at parenthesis depth zero in the
// remaining input. After a leading SELECT that is the SELECT INTO form, which
// creates a table.
func hasTopLevelInto(l *lexer) bool {
	depth := 0
	for {
		tok, ok := l.next()
		if !ok {
			return false
		}
		switch {
		case tok.kind == tokPunct && tok.text == "(":
			depth++
		case tok.kind == tokPunct && tok.text == ")":
			if depth > 0 {
				depth--
			}
		case tok.kind == tokWord && tok.text == "INTO" && depth == 0:
			return true
		}
	}
}

// skipParens consumes tokens up to and including the ')' matching an already
// consumed '('. Returns false on unbalanced input.
func skipParens(l *lexer) bool {
	depth := 1
	for depth > 0 {
		tok, ok := l.next()
		if !ok {
			return false
		}
		if tok.kind == tokPunct {
			switch tok.text {
			case "(":
				depth++
			case ")":
				depth--
			}
		}
	}
	return true
}

// skipCTEPrologue advances past "WITH [RECURSIVE] name [(cols)] AS [[NOT]
// MATERIALIZED] (body) [, ...]" leaving the lexer at the main statement. The
// WITH keyword itself must already be consumed. Returns false when the
// prologue does not have that shape.
func skipCTEPrologue(l *lexer) bool {
	save := *l
	tok, ok := l.next()
	if !ok {
		return false
	}
	if !(tok.kind == tokWord && tok.text == "RECURSIVE") {
		*l = save
	}

	for {
		tok, ok := l.next()
		if !ok || (tok.kind != tokWord && tok.kind != tokQuotedIdent) {
			return false
		}

		tok, ok = l.next()
		if !ok {
			return false
		}
		if tok.kind == tokPunct && tok.text == "(" {
			if !skipParens(l) {
				return false
			}
			tok, ok = l.next()
			if !ok {
				return false
			}
		}
		if tok.kind != tokWord || tok.text != "AS" {
			return false
		}

		tok, ok = l.next()
		if !ok {
			return false
		}
		if tok.kind == tokWord && tok.text == "NOT" {
			tok, ok = l.next()
			if !ok || tok.kind != tokWord || tok.text != "MATERIALIZED" {
				return false
			}
			tok, ok = l.next()
			if !ok {
				return false
			}
		} else if tok.kind == tokWord && tok.text == "MATERIALIZED" {
			tok, ok = l.next()
			if !ok {
				return false
			}
		}
		if tok.kind != tokPunct || tok.text != "(" {
			return false
		}
		if !skipParens(l) {
			return false
		}

		save := *l
		tok, ok = l.next()
		if !ok {
			return false
		}
		if tok.kind == tokPunct && tok.text == "," {
			continue
		}
		*l = save
		return true
	}
}
