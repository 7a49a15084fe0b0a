package slp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d: %s", e.Position, e.Message)
}

// Incomplete reports whether more input could complete the source.
func (e *ParseError) Incomplete() bool {
	return e.Message == msgUnclosedList || e.Message == msgUnclosedString
}

const (
	msgUnclosedList   = "unclosed list"
	msgUnclosedString = "unclosed quoted string"
)

type Parser struct {
	Target   string
	Position int
}

// Parse reads every top level expression in src.
func Parse(src string) ([]Obj, error) {
	p := &Parser{Target: src}
	var out []Obj
	for {
		p.skipWhitespace()
		if p.Position >= len(p.Target) {
			return out, nil
		}
		obj, err := p.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
}

// ParseOne reads exactly one expression and rejects trailing input.
func ParseOne(src string) (Obj, error) {
	exprs, err := Parse(src)
	if err != nil {
		return Obj{}, err
	}
	if len(exprs) != 1 {
		return Obj{}, &ParseError{Position: 0, Message: fmt.Sprintf("expected one expression, found %d", len(exprs))}
	}
	return exprs[0], nil
}

// Next reads the expression at the current position.
func (p *Parser) Next() (Obj, error) {
	p.skipWhitespace()

	if p.Position >= len(p.Target) {
		return Obj{}, &ParseError{Position: p.Position, Message: "unexpected end of input"}
	}

	switch p.Target[p.Position] {
	case '(':
		return p.parseList()
	case ')':
		return Obj{}, &ParseError{Position: p.Position, Message: "unexpected ')'"}
	case '\'':
		p.Position++ // consume the quote
		quoted, err := p.Next()
		if err != nil {
			return Obj{}, err
		}
		return NewList(NewSymbol("quote"), quoted), nil
	case '"':
		return p.parseQuotedString()
	default:
		return p.parseAtom(), nil
	}
}

func (p *Parser) parseList() (Obj, error) {
	listStart := p.Position
	p.Position++ // skip '('
	items := List{}

	for {
		p.skipWhitespace()
		if p.Position >= len(p.Target) {
			return Obj{}, &ParseError{Position: listStart, Message: msgUnclosedList}
		}
		if p.Target[p.Position] == ')' {
			p.Position++
			return Obj{Type: OBJ_TYPE_LIST, D: items}, nil
		}
		item, err := p.Next()
		if err != nil {
			return Obj{}, err
		}
		items = append(items, item)
	}
}

func isDelimiter(c byte) bool {
	return c == '(' || c == ')' || c == '"' || c == ';' || c == '\'' || unicode.IsSpace(rune(c))
}

func (p *Parser) parseAtom() Obj {
	start := p.Position
	for p.Position < len(p.Target) && !isDelimiter(p.Target[p.Position]) {
		p.Position++
	}

	value := p.Target[start:p.Position]

	switch value {
	case "#t", "true":
		return True
	case "#f", "false":
		return False
	}

	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return NewInt(n)
	}

	return NewSymbol(value)
}

func (p *Parser) parseQuotedString() (Obj, error) {
	p.Position++ // skip opening quote
	start := p.Position

	for p.Position < len(p.Target) {
		switch p.Target[p.Position] {
		case '\\':
			p.Position += 2
			continue
		case '"':
			value := p.Target[start:p.Position]
			p.Position++
			return NewString(unescapeString(value)), nil
		}
		p.Position++
	}

	return Obj{}, &ParseError{Position: start - 1, Message: msgUnclosedString}
}

func unescapeString(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			default:
				sb.WriteByte(s[i+1])
			}
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// skipWhitespace also skips ';' line comments.
func (p *Parser) skipWhitespace() {
	for p.Position < len(p.Target) {
		c := p.Target[p.Position]
		switch {
		case c == ';':
			for p.Position < len(p.Target) && p.Target[p.Position] != '\n' {
				p.Position++
			}
		case unicode.IsSpace(rune(c)):
			p.Position++
		default:
			return
		}
	}
}
