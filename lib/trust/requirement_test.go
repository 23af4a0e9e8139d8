// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trust

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/localipc/lib/binhash"
	"github.com/bureau-foundation/localipc/lib/peercred"
)

const listenerUID = 1000

// fakeExecutable writes a small file standing in for a peer binary and
// returns its path and digest.
func fakeExecutable(t *testing.T, content string) (string, binhash.Digest) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bin", "peer-tool")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path, binhash.Sum([]byte(content))
}

func mustParseAs(t *testing.T, expression string) *Requirement {
	t.Helper()
	requirement, err := parseAs(expression, listenerUID)
	if err != nil {
		t.Fatalf("parse %q: %v", expression, err)
	}
	return requirement
}

func TestEvaluate(t *testing.T) {
	executable, digest := fakeExecutable(t, "peer binary v1")
	_, otherDigest := fakeExecutable(t, "peer binary v2")

	peer := peercred.Credentials{
		PID:        4242,
		UID:        listenerUID,
		GID:        100,
		Executable: executable,
		Image:      executable,
	}
	stranger := peercred.Credentials{PID: 77, UID: 2000, GID: 2000, Executable: executable, Image: executable}

	tests := []struct {
		expression string
		peer       peercred.Credentials
		want       bool
	}{
		{"any", stranger, true},
		{"same-user", peer, true},
		{"same-user", stranger, false},
		{"uid=1000", peer, true},
		{"uid!=1000", peer, false},
		{"gid=100", peer, true},
		{"gid=100", stranger, false},
		{"pid=4242", peer, true},
		{"pid=4243", peer, false},
		{"exe=" + executable, peer, true},
		{`exe="` + executable + `"`, peer, true},
		{"exe=/usr/bin/other", peer, false},
		{"exe!=/usr/bin/other", peer, true},
		{"exe-dir=" + filepath.Dir(executable), peer, true},
		{"exe-dir=/usr/bin", peer, false},
		{"exe-hash=" + digest.String(), peer, true},
		{"exe-hash=" + strings.ToUpper(digest.String()), peer, true},
		{"exe-hash=" + otherDigest.String(), peer, false},
		{"not same-user", stranger, true},
		{"not not same-user", peer, true},
		{"uid=0 or same-user", peer, true},
		{"uid=0 or same-user", stranger, false},
		{"same-user and gid=100", peer, true},
		{"same-user and gid=5", peer, false},
		// and binds tighter than or.
		{"uid=2000 or uid=1000 and gid=5", stranger, true},
		{"(uid=2000 or uid=1000) and gid=5", stranger, false},
		{"same-user and not (pid=1 or pid=2)", peer, true},
	}

	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			requirement := mustParseAs(t, test.expression)
			if got := requirement.Evaluate(test.peer); got != test.want {
				t.Errorf("Evaluate(%s) = %v, want %v (reason: %v)",
					test.peer, got, test.want, requirement.Check(test.peer))
			}
		})
	}
}

func TestEvaluateUnreadableExecutableRejects(t *testing.T) {
	gone := peercred.Credentials{
		PID:           99,
		UID:           listenerUID,
		ExecutableErr: os.ErrNotExist,
	}
	missingFile := peercred.Credentials{
		PID:        99,
		UID:        listenerUID,
		Executable: filepath.Join(t.TempDir(), "deleted"),
		Image:      filepath.Join(t.TempDir(), "deleted"),
	}
	noImage := peercred.Credentials{
		PID:        99,
		UID:        listenerUID,
		Executable: "/usr/bin/tool",
	}

	tests := []struct {
		expression string
		peer       peercred.Credentials
	}{
		{"exe=/usr/bin/tool", gone},
		{"exe!=/usr/bin/tool", gone},
		{"not exe-dir=/usr/bin", gone},
		{"exe-hash=" + strings.Repeat("ab", 32), gone},
		{"not exe-hash=" + strings.Repeat("ab", 32), missingFile},
		{"not exe-hash=" + strings.Repeat("ab", 32), noImage},
		{"exe=/usr/bin/tool or same-user", gone},
	}
	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			requirement := mustParseAs(t, test.expression)
			err := requirement.Check(test.peer)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("Check = %v, want ErrRejected", err)
			}
			if requirement.Evaluate(test.peer) {
				t.Error("Evaluate accepted a peer whose executable could not be read")
			}
		})
	}

	// Requirements that never look at the executable are unaffected.
	if !mustParseAs(t, "same-user").Evaluate(gone) {
		t.Error("same-user rejected a peer only because its executable is unknown")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		expression string
		offset     int
		contains   string
	}{
		{"uid", 3, `expected "=" or "!="`},
		{"uid=", 4, "expected a value"},
		{"uid=abc", 4, "not a 32-bit unsigned integer"},
		{"uid=-1", 4, "not a 32-bit unsigned integer"},
		{"pid=0", 4, "not a positive integer"},
		{"color=red", 0, `unknown key "color"`},
		{"exe=relative/path", 4, "not an absolute path"},
		{"exe-hash=abcd", 9, "64 hex characters"},
		{"exe-hash=" + strings.Repeat("zz", 32), 9, "exe-hash value"},
		{"same-user and", 13, "unexpected end"},
		{"and same-user", 0, `before "and"`},
		{"(same-user", 10, `expected ")"`},
		{"same-user)", 9, "after complete expression"},
		{"same-user same-user", 10, "after complete expression"},
		{"uid!1000", 3, `expected "!="`},
		{`exe="/usr/bin`, 4, "unterminated quoted string"},
		{`exe="/usr\n"`, 9, "unknown escape"},
		{"=1", 0, "expected a condition"},
	}

	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			_, err := parseAs(test.expression, listenerUID)
			var parseError *ParseError
			if !errors.As(err, &parseError) {
				t.Fatalf("parse error = %v, want *ParseError", err)
			}
			if parseError.Offset != test.offset {
				t.Errorf("Offset = %d, want %d (%v)", parseError.Offset, test.offset, err)
			}
			if !strings.Contains(parseError.Message, test.contains) {
				t.Errorf("Message = %q, want it to contain %q", parseError.Message, test.contains)
			}
		})
	}
}

func TestParseNestingLimit(t *testing.T) {
	deep := map[string]string{
		"not":         strings.Repeat("not ", 100000) + "any",
		"parentheses": strings.Repeat("(", 100000) + "any" + strings.Repeat(")", 100000),
		"mixed":       strings.Repeat("not (", maxNesting) + "any" + strings.Repeat(")", maxNesting),
	}
	for name, expression := range deep {
		t.Run(name, func(t *testing.T) {
			_, err := parseAs(expression, listenerUID)
			var parseError *ParseError
			if !errors.As(err, &parseError) {
				t.Fatalf("parse error = %v, want *ParseError", err)
			}
			if !strings.Contains(parseError.Message, "nests deeper") {
				t.Errorf("Message = %q, want a nesting error", parseError.Message)
			}
		})
	}

	// Exactly at the limit still parses.
	atLimit := strings.Repeat("(", maxNesting/2) + strings.Repeat("not ", maxNesting/2) + "any" + strings.Repeat(")", maxNesting/2)
	requirement, err := parseAs(atLimit, listenerUID)
	if err != nil {
		t.Fatalf("parse at nesting limit: %v", err)
	}
	if !requirement.Evaluate(peercred.Credentials{PID: 1}) {
		t.Error("an even number of nots around any rejected the peer")
	}
}

func TestParseEmpty(t *testing.T) {
	for _, expression := range []string{"", "   ", "\t\n"} {
		if _, err := Parse(expression); !errors.Is(err, ErrEmpty) {
			t.Errorf("Parse(%q) = %v, want ErrEmpty", expression, err)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		expression string
		want       string
	}{
		{"  same-user  ", "same-user"},
		{"uid=0   or  same-user and gid=5", "uid=0 or same-user and gid=5"},
		{"(uid=0 or same-user) and gid=5", "(uid=0 or same-user) and gid=5"},
		{"not (uid=0 and gid=0)", "not (uid=0 and gid=0)"},
		{"((any))", "any"},
		{"uid=007", "uid=7"},
		{`exe="/opt/my tools/../bin/x"`, "exe=/opt/bin/x"},
		{`exe="/opt/my tools/x"`, `exe="/opt/my tools/x"`},
		{"exe-dir=/usr/lib/", "exe-dir=/usr/lib"},
	}
	for _, test := range tests {
		t.Run(test.expression, func(t *testing.T) {
			requirement := mustParseAs(t, test.expression)
			if got := requirement.String(); got != test.want {
				t.Errorf("String() = %q, want %q", got, test.want)
			}
			if requirement.Source() != test.expression {
				t.Errorf("Source() = %q, want %q", requirement.Source(), test.expression)
			}

			// The canonical form must parse to an equivalent requirement.
			reparsed := mustParseAs(t, requirement.String())
			if reparsed.String() != requirement.String() {
				t.Errorf("canonical form not stable: %q -> %q", requirement.String(), reparsed.String())
			}
		})
	}
}

func TestParseBindsEffectiveUID(t *testing.T) {
	requirement, err := Parse("same-user")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	self := peercred.Credentials{PID: int32(os.Getpid()), UID: uint32(os.Geteuid())}
	if !requirement.Evaluate(self) {
		t.Error("same-user rejected the parsing process's own uid")
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse did not panic on an invalid requirement")
		}
	}()
	MustParse("uid=")
}
