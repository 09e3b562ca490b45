// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/CadenFinley/cjsh/fileutil"
)

// maxSuggestions bounds how many "did you mean" candidates a single error
// line carries, and maxSuggestDistance bounds how different a candidate may
// be from the typed token before it stops being worth suggesting at all.
const (
	maxSuggestions     = 3
	maxSuggestDistance = 2
)

// levenshtein computes the classic edit distance between a and b, the
// heuristic the "did you mean" suggestions are ranked by.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// knownCommandNames collects every name the shell would accept as a command
// word: builtins, user functions, aliases, and executables sitting in
// $PATH. It is the Go-native equivalent of the "available_commands" set
// cjsh's command analyzer builds before deciding a token is unrecognized.
func (r *Runner) knownCommandNames() []string {
	seen := make(map[string]bool, len(builtinNames)+len(r.Funcs)+len(r.alias))
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, n := range builtinNames {
		add(n)
	}
	for n := range r.Funcs {
		add(n)
	}
	for n := range r.alias {
		add(n)
	}
	if r.writeEnv != nil {
		for _, dir := range filepath.SplitList(r.writeEnv.Get("PATH").String()) {
			entries, err := os.ReadDir(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				add(e.Name())
			}
		}
	}
	return names
}

// suggestCommand returns a "did you mean" clause for an unrecognized
// command name, or "" if nothing in scope is close enough to be worth
// suggesting. Candidates tie-broken by distance then name, capped at
// [maxSuggestions].
func (r *Runner) suggestCommand(name string) string {
	type candidate struct {
		name string
		dist int
	}
	var best []candidate
	for _, known := range r.knownCommandNames() {
		d := levenshtein(name, known)
		if d == 0 || d > maxSuggestDistance {
			continue
		}
		best = append(best, candidate{known, d})
	}
	if len(best) == 0 {
		return r.suggestScriptPath(name)
	}
	sort.Slice(best, func(i, j int) bool {
		if best[i].dist != best[j].dist {
			return best[i].dist < best[j].dist
		}
		return best[i].name < best[j].name
	})
	if len(best) > maxSuggestions {
		best = best[:maxSuggestions]
	}
	names := make([]string, len(best))
	for i, c := range best {
		names[i] = c.name
	}
	return "did you mean " + joinQuoted(names) + "?"
}

// suggestScriptPath catches the common typo of running a local script
// without its "./" prefix: if a same-named, script-looking file sits in the
// current directory, point the user there instead of hunting for a
// near-miss command name among $PATH entries.
func (r *Runner) suggestScriptPath(name string) string {
	if name == "" || filepath.Base(name) != name {
		return ""
	}
	path := filepath.Join(r.Dir, name)
	info, err := os.Lstat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	if fileutil.CouldBeScript2(fs.FileInfoToDirEntry(info)) == fileutil.ConfNotScript {
		return ""
	}
	return "did you mean './" + name + "'?"
}

func joinQuoted(names []string) string {
	var b strings.Builder
	for i, n := range names {
		switch {
		case i == 0:
		case i == len(names)-1:
			b.WriteString(" or ")
		default:
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(n)
		b.WriteByte('\'')
	}
	return b.String()
}

// reportCommandNotFound prints the §7 "cjsh: <context>: <message>" banner
// for a failed command lookup, attaching a "did you mean" suggestion when
// lookupErr came from searching $PATH rather than from a token that already
// named an explicit path (a path that doesn't exist isn't a typo to
// correct, it's just missing).
func (r *Runner) reportCommandNotFound(token string, lookupErr error) {
	pathChars := `/`
	if runtime.GOOS == "windows" {
		pathChars = `:\/`
	}
	if strings.ContainsAny(token, pathChars) {
		r.errf("%s: %v\n", token, lookupErr)
		return
	}
	msg := token + ": command not found"
	if hint := r.suggestCommand(token); hint != "" {
		msg += " (" + hint + ")"
	}
	r.errf("%s\n", msg)
}
