// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bureau-foundation/localipc/lib/binhash"
)

// ErrEmpty is returned by Parse for an empty or all-whitespace
// expression. Callers that treat "no requirement" as "accept every
// peer" check for the empty string before parsing.
var ErrEmpty = errors.New("trust: empty requirement")

// ParseError describes a malformed requirement.
type ParseError struct {
	Input   string
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trust: invalid requirement at offset %d: %s", e.Offset, e.Message)
}

// Parse compiles expression into a Requirement. same-user clauses bind
// to the effective uid of the calling process.
func Parse(expression string) (*Requirement, error) {
	return parseAs(expression, uint32(os.Geteuid()))
}

func parseAs(expression string, effectiveUID uint32) (*Requirement, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, ErrEmpty
	}
	tokens, err := lex(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{input: expression, tokens: tokens, effectiveUID: effectiveUID}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if next := p.peek(); next.kind != tokenEOF {
		return nil, p.errorAt(next, "unexpected %s after complete expression", next.describe())
	}
	return &Requirement{source: expression, root: root}, nil
}

// MustParse is Parse for requirements known to be valid, such as
// compiled-in defaults. It panics on error.
func MustParse(expression string) *Requirement {
	requirement, err := Parse(expression)
	if err != nil {
		panic(err)
	}
	return requirement
}

// maxNesting bounds how deeply "not" and parentheses may nest.
const maxNesting = 64

type parser struct {
	input        string
	tokens       []token
	position     int
	depth        int
	effectiveUID uint32
}

func (p *parser) peek() token { return p.tokens[p.position] }

func (p *parser) next() token {
	t := p.tokens[p.position]
	if t.kind != tokenEOF {
		p.position++
	}
	return t
}

func (p *parser) errorAt(t token, format string, args ...any) *ParseError {
	return &ParseError{Input: p.input, Offset: t.offset, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) atKeyword(keyword string) bool {
	t := p.peek()
	return t.kind == tokenWord && t.text == keyword
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	operands := []node{left}
	for p.atKeyword("or") {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return orNode(operands), nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	operands := []node{left}
	for p.atKeyword("and") {
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return andNode(operands), nil
}

func (p *parser) parseFactor() (node, error) {
	t := p.next()
	if t.kind == tokenLeftParen || (t.kind == tokenWord && t.text == "not") {
		if p.depth == maxNesting {
			return nil, p.errorAt(t, "requirement nests deeper than %d levels", maxNesting)
		}
		p.depth++
		defer func() { p.depth-- }()
	}
	switch t.kind {
	case tokenLeftParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokenRightParen {
			return nil, p.errorAt(closing, `expected ")" to close "(" at offset %d, found %s`, t.offset, closing.describe())
		}
		return inner, nil
	case tokenWord:
		switch t.text {
		case "not":
			operand, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			return notNode{operand: operand}, nil
		case "any":
			return anyNode{}, nil
		case "same-user":
			return sameUserNode{uid: p.effectiveUID}, nil
		case "and", "or":
			return nil, p.errorAt(t, "expected a condition before %q", t.text)
		}
		return p.parseClause(t)
	case tokenEOF:
		return nil, p.errorAt(t, "unexpected end of requirement")
	default:
		return nil, p.errorAt(t, "expected a condition, found %s", t.describe())
	}
}

func (p *parser) parseClause(keyToken token) (node, error) {
	key := clauseKey(keyToken.text)
	if !key.valid() {
		return nil, p.errorAt(keyToken, "unknown key %q", keyToken.text)
	}

	operatorToken := p.next()
	var negate bool
	switch operatorToken.kind {
	case tokenEqual:
	case tokenNotEqual:
		negate = true
	default:
		return nil, p.errorAt(operatorToken, `expected "=" or "!=" after %q, found %s`, keyToken.text, operatorToken.describe())
	}

	valueToken := p.next()
	if valueToken.kind != tokenWord && valueToken.kind != tokenString {
		return nil, p.errorAt(valueToken, "expected a value for %q, found %s", keyToken.text, valueToken.describe())
	}

	clause := &clauseNode{key: key, negate: negate, raw: valueToken.text}
	if err := clause.compile(); err != nil {
		return nil, p.errorAt(valueToken, "%s", err)
	}
	return clause, nil
}

// compile parses the clause value into the typed form its key compares.
func (c *clauseNode) compile() error {
	switch c.key {
	case keyUID, keyGID:
		value, err := strconv.ParseUint(c.raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%s value %q is not a 32-bit unsigned integer", c.key, c.raw)
		}
		c.number = value
	case keyPID:
		value, err := strconv.ParseInt(c.raw, 10, 32)
		if err != nil || value <= 0 {
			return fmt.Errorf("pid value %q is not a positive integer", c.raw)
		}
		c.number = uint64(value)
	case keyExe, keyExeDir:
		if !filepath.IsAbs(c.raw) {
			return fmt.Errorf("%s value %q is not an absolute path", c.key, c.raw)
		}
		c.path = filepath.Clean(c.raw)
	case keyExeHash:
		if len(c.raw) != 64 {
			return fmt.Errorf("exe-hash value must be 64 hex characters, got %d", len(c.raw))
		}
		digest, err := binhash.ParseDigest(c.raw)
		if err != nil {
			return fmt.Errorf("exe-hash value: %v", err)
		}
		c.digest = digest
	}
	return nil
}
