// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/localipc/lib/binhash"
	"github.com/bureau-foundation/localipc/lib/peercred"
)

// Requirement is a compiled, immutable trust expression. It is safe
// for concurrent use.
type Requirement struct {
	source string
	root   node
}

// String returns the requirement in canonical form: keywords
// lowercase, single spaces, values quoted only when needed, and
// parentheses only where precedence requires them.
func (r *Requirement) String() string {
	return r.root.render(precedenceOr)
}

// Source returns the expression exactly as passed to Parse.
func (r *Requirement) Source() string { return r.source }

// Evaluate reports whether the peer satisfies the requirement.
func (r *Requirement) Evaluate(credentials peercred.Credentials) bool {
	return r.Check(credentials) == nil
}

// ErrRejected is wrapped by every error Check returns.
var ErrRejected = errors.New("trust: peer rejected")

// Check is Evaluate with a reason: nil when the peer is accepted, or
// an error wrapping ErrRejected that says why not. The reason is meant
// for local logs only; it is never sent to the peer.
func (r *Requirement) Check(credentials peercred.Credentials) error {
	state := &evaluation{credentials: credentials}
	matched := r.root.eval(state)
	if state.failure != nil {
		return fmt.Errorf("%w: %w", ErrRejected, state.failure)
	}
	if !matched {
		return fmt.Errorf("%w: %s does not satisfy %q", ErrRejected, credentials, r.String())
	}
	return nil
}

// evaluation carries per-peer state through one Evaluate call. The
// executable digest is computed at most once.
type evaluation struct {
	credentials peercred.Credentials

	digestDone bool
	digest     binhash.Digest

	// failure records why a clause could not be decided. Any failure
	// rejects the peer regardless of how the expression would
	// otherwise combine the clause.
	failure error
}

func (e *evaluation) executable() (string, bool) {
	if e.credentials.Executable == "" {
		e.fail()
		return "", false
	}
	return e.credentials.Executable, true
}

// executableDigest hashes the running image, not the file at the
// executable's path, which may have been replaced since the peer
// started.
func (e *evaluation) executableDigest() (binhash.Digest, bool) {
	if !e.digestDone {
		e.digestDone = true
		if e.credentials.Image == "" {
			e.fail()
			return binhash.Digest{}, false
		}
		digest, err := binhash.HashFile(e.credentials.Image)
		if err != nil {
			if e.failure == nil {
				e.failure = err
			}
			return binhash.Digest{}, false
		}
		e.digest = digest
	}
	return e.digest, e.failure == nil
}

func (e *evaluation) fail() {
	if e.failure != nil {
		return
	}
	if e.credentials.ExecutableErr != nil {
		e.failure = e.credentials.ExecutableErr
	} else {
		e.failure = fmt.Errorf("executable of pid %d is unknown", e.credentials.PID)
	}
}

type precedence int

const (
	precedenceOr precedence = iota
	precedenceAnd
	precedenceNot
)

type node interface {
	eval(*evaluation) bool
	// render writes the node for a context binding at least as
	// tightly as parent.
	render(parent precedence) string
}

type anyNode struct{}

func (anyNode) eval(*evaluation) bool     { return true }
func (anyNode) render(precedence) string { return "any" }

type sameUserNode struct{ uid uint32 }

func (n sameUserNode) eval(e *evaluation) bool { return e.credentials.UID == n.uid }
func (sameUserNode) render(precedence) string  { return "same-user" }

type notNode struct{ operand node }

func (n notNode) eval(e *evaluation) bool { return !n.operand.eval(e) }

func (n notNode) render(precedence) string {
	return "not " + n.operand.render(precedenceNot)
}

type andNode []node

func (n andNode) eval(e *evaluation) bool {
	for _, operand := range n {
		if !operand.eval(e) {
			return false
		}
	}
	return true
}

func (n andNode) render(parent precedence) string {
	return renderJoined(n, " and ", precedenceAnd, parent)
}

type orNode []node

func (n orNode) eval(e *evaluation) bool {
	for _, operand := range n {
		if operand.eval(e) {
			return true
		}
	}
	return false
}

func (n orNode) render(parent precedence) string {
	return renderJoined(n, " or ", precedenceOr, parent)
}

func renderJoined(operands []node, separator string, own, parent precedence) string {
	parts := make([]string, len(operands))
	for i, operand := range operands {
		parts[i] = operand.render(own + 1)
	}
	joined := strings.Join(parts, separator)
	if parent > own {
		return "(" + joined + ")"
	}
	return joined
}

type clauseKey string

const (
	keyUID     clauseKey = "uid"
	keyGID     clauseKey = "gid"
	keyPID     clauseKey = "pid"
	keyExe     clauseKey = "exe"
	keyExeDir  clauseKey = "exe-dir"
	keyExeHash clauseKey = "exe-hash"
)

func (k clauseKey) valid() bool {
	switch k {
	case keyUID, keyGID, keyPID, keyExe, keyExeDir, keyExeHash:
		return true
	}
	return false
}

type clauseNode struct {
	key    clauseKey
	negate bool
	raw    string

	number uint64
	path   string
	digest binhash.Digest
}

func (c *clauseNode) eval(e *evaluation) bool {
	var equal bool
	switch c.key {
	case keyUID:
		equal = uint64(e.credentials.UID) == c.number
	case keyGID:
		equal = uint64(e.credentials.GID) == c.number
	case keyPID:
		equal = e.credentials.PID > 0 && uint64(e.credentials.PID) == c.number
	case keyExe:
		path, ok := e.executable()
		if !ok {
			return false
		}
		equal = path == c.path
	case keyExeDir:
		if _, ok := e.executable(); !ok {
			return false
		}
		equal = e.credentials.ExecutableDir() == c.path
	case keyExeHash:
		digest, ok := e.executableDigest()
		if !ok {
			return false
		}
		equal = digest == c.digest
	}
	return equal != c.negate
}

func (c *clauseNode) render(precedence) string {
	operator := "="
	if c.negate {
		operator = "!="
	}
	var value string
	switch c.key {
	case keyUID, keyGID, keyPID:
		value = strconv.FormatUint(c.number, 10)
	case keyExe, keyExeDir:
		value = quoteIfNeeded(c.path)
	case keyExeHash:
		value = c.digest.String()
	}
	return string(c.key) + operator + value
}

func quoteIfNeeded(value string) string {
	needsQuote := value == ""
	for i := 0; i < len(value) && !needsQuote; i++ {
		needsQuote = isDelimiter(value[i]) || value[i] == '\\'
	}
	if !needsQuote {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return `"` + escaped + `"`
}
