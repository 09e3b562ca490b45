// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"fmt"
	"os"
	"strings"

	"github.com/CadenFinley/cjsh/expand"
	"github.com/CadenFinley/cjsh/syntax"
)

// readOnlyEnviron adapts an [expand.Environ] into an [expand.WriteEnviron]
// for callers of [Expand] and [Fields], which only ever read variables.
type readOnlyEnviron struct{ expand.Environ }

func (readOnlyEnviron) Set(name string, vr expand.Variable) error {
	return fmt.Errorf("%s: read-only environment", name)
}

// Expand performs shell expansion on s, using env to resolve variables.
// The expansion will apply to parameter expansions like $var and
// ${#var}, but also to arithmetic expansions like $((var + 3)). The input is
// expanded as if it were within double quotes (any double quotes in s are
// escaped first), so brace expressions like foo{1,2,3} are not expanded.
//
// If env is nil, the current environment variables are used. Empty variables
// are treated as unset.
//
// Subshells like $(echo foo) aren't supported to avoid running arbitrary code.
// To support those, use an interpreter via [SourceNode] instead.
//
// An error will be reported if the input string had invalid syntax.
func Expand(s string, env func(string) string) (string, error) {
	// Quote the input so it parses as a single word instead of being
	// split on whitespace the way a command's arguments would be; "$"
	// and friends still expand normally inside double quotes.
	words, err := parseWords(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return "", err
	}
	if len(words) == 0 {
		return "", nil
	}
	if env == nil {
		env = os.Getenv
	}
	cfg := &expand.Config{Env: readOnlyEnviron{expand.FuncEnviron(env)}}
	return expand.Literal(cfg, &words[0])
}

// Fields performs shell expansion on s, using env to resolve variables, and
// returns the separate fields that result from the expansion. It is similar
// to Expand, but word splitting and pathname expansion are performed, and
// the resulting fields are not joined.
//
// If env is nil, the current environment variables are used. Empty variables
// are treated as unset.
//
// An error will be reported if the input string had invalid syntax.
func Fields(s string, env func(string) string) ([]string, error) {
	words, err := parseWords(s)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = os.Getenv
	}
	cfg := &expand.Config{
		Env:      readOnlyEnviron{expand.FuncEnviron(env)},
		ReadDir2: os.ReadDir,
	}
	ptrs := make([]*syntax.Word, len(words))
	for i := range words {
		ptrs[i] = &words[i]
	}
	return expand.Fields(cfg, ptrs...)
}

// parseWords parses s as a single command's argument list and returns its
// words, without running anything.
func parseWords(s string) ([]syntax.Word, error) {
	file, err := syntax.Parse([]byte(s), "", 0)
	if err != nil {
		return nil, err
	}
	if len(file.Stmts) == 0 {
		return nil, nil
	}
	call, ok := file.Stmts[0].Cmd.(*syntax.CallExpr)
	if !ok {
		return nil, fmt.Errorf("unsupported command form")
	}
	return call.Args, nil
}
