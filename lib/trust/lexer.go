// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenWord
	tokenString
	tokenLeftParen
	tokenRightParen
	tokenEqual
	tokenNotEqual
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenWord:
		return "word"
	case tokenString:
		return "quoted string"
	case tokenLeftParen:
		return `"("`
	case tokenRightParen:
		return `")"`
	case tokenEqual:
		return `"="`
	case tokenNotEqual:
		return `"!="`
	default:
		return fmt.Sprintf("token(%d)", int(k))
	}
}

type token struct {
	kind   tokenKind
	text   string
	offset int
}

func (t token) describe() string {
	switch t.kind {
	case tokenWord:
		return fmt.Sprintf("%q", t.text)
	case tokenString:
		return fmt.Sprintf("quoted string %q", t.text)
	default:
		return t.kind.String()
	}
}

// isDelimiter reports whether c ends a bare word.
func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '=', '!', '"':
		return true
	}
	return false
}

// lex splits input into tokens. The final token is always tokenEOF.
func lex(input string) ([]token, error) {
	var tokens []token
	position := 0
	for position < len(input) {
		c := input[position]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			position++
		case c == '(':
			tokens = append(tokens, token{kind: tokenLeftParen, text: "(", offset: position})
			position++
		case c == ')':
			tokens = append(tokens, token{kind: tokenRightParen, text: ")", offset: position})
			position++
		case c == '=':
			tokens = append(tokens, token{kind: tokenEqual, text: "=", offset: position})
			position++
		case c == '!':
			if position+1 >= len(input) || input[position+1] != '=' {
				return nil, &ParseError{Input: input, Offset: position, Message: `expected "!="`}
			}
			tokens = append(tokens, token{kind: tokenNotEqual, text: "!=", offset: position})
			position += 2
		case c == '"':
			text, end, err := lexString(input, position)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: text, offset: position})
			position = end
		default:
			start := position
			for position < len(input) && !isDelimiter(input[position]) {
				position++
			}
			tokens = append(tokens, token{kind: tokenWord, text: input[start:position], offset: start})
		}
	}
	return append(tokens, token{kind: tokenEOF, offset: len(input)}), nil
}

// lexString reads a double-quoted string starting at input[start] and
// returns its unescaped contents and the offset just past the closing
// quote.
func lexString(input string, start int) (string, int, error) {
	var builder strings.Builder
	position := start + 1
	for position < len(input) {
		c := input[position]
		switch c {
		case '"':
			return builder.String(), position + 1, nil
		case '\\':
			if position+1 >= len(input) {
				return "", 0, &ParseError{Input: input, Offset: position, Message: "unterminated escape"}
			}
			next := input[position+1]
			if next != '"' && next != '\\' {
				return "", 0, &ParseError{Input: input, Offset: position, Message: fmt.Sprintf(`unknown escape "\%c"`, next)}
			}
			builder.WriteByte(next)
			position += 2
		default:
			builder.WriteByte(c)
			position++
		}
	}
	return "", 0, &ParseError{Input: input, Offset: start, Message: "unterminated quoted string"}
}
