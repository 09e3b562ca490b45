// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"os"
	"runtime"
	"strconv"

	"github.com/CadenFinley/cjsh/expand"
	"github.com/CadenFinley/cjsh/syntax"
)

// overlayEnviron implements [expand.WriteEnviron] on top of a parent
// environment, so that writes only affect the overlay's own scope: global
// variables live in the root overlay created by [Runner.Reset], function
// calls push a funcScope overlay, and subshells get a private copy so that
// they never mutate their parent's variables.
type overlayEnviron struct {
	parent    expand.Environ
	values    map[string]expand.Variable
	funcScope bool
}

// newOverlayEnviron builds the overlay used by a subshell. Foreground
// subshells can keep delegating reads to the live parent, since the parent
// blocks until the subshell finishes. Background subshells run concurrently
// with the parent shell, which may go on to mutate its own variables, so we
// take a private snapshot instead of racing on a shared parent.
func newOverlayEnviron(parent expand.WriteEnviron, background bool) *overlayEnviron {
	if !background {
		return &overlayEnviron{parent: parent}
	}
	values := make(map[string]expand.Variable)
	parent.Each(func(name string, vr expand.Variable) bool {
		values[name] = vr
		return true
	})
	return &overlayEnviron{values: values}
}

func (o *overlayEnviron) Get(name string) expand.Variable {
	if vr, ok := o.values[name]; ok {
		return vr
	}
	if o.parent != nil {
		return o.parent.Get(name)
	}
	return expand.Variable{}
}

func (o *overlayEnviron) Set(name string, vr expand.Variable) error {
	if vr.Kind == expand.KeepValue {
		// Merge attributes onto whatever is already visible without
		// touching the value, e.g. `readonly foo=bar; export foo`.
		cur := o.Get(name)
		cur.Local, cur.Exported, cur.ReadOnly = vr.Local, vr.Exported, vr.ReadOnly
		vr = cur
	}
	target := o.scopeFor(name, vr.Local)
	if target.values == nil {
		target.values = make(map[string]expand.Variable)
	}
	target.values[name] = vr
	return nil
}

// scopeFor finds the overlay that an assignment to name should land in.
// An explicit "local" write always targets the innermost function scope.
// Otherwise, if some enclosing function scope already shadowed name via
// "local", the write updates that shadow in place; failing that, it skips
// past every function scope so the assignment is visible globally once the
// function returns, matching shell semantics for a plain "x=1" inside a
// function body that never declared x local.
func (o *overlayEnviron) scopeFor(name string, local bool) *overlayEnviron {
	if local {
		return o
	}
	cur := o
	for cur.funcScope {
		if vr, ok := cur.values[name]; ok && vr.Local {
			return cur
		}
		parent, ok := cur.parent.(*overlayEnviron)
		if !ok {
			break
		}
		cur = parent
	}
	return cur
}

func (o *overlayEnviron) Delete(name string) {
	if _, ok := o.values[name]; ok {
		delete(o.values, name)
		return
	}
	if o.parent == nil {
		return
	}
	// Mask a variable that only the parent holds, rather than deleting it
	// out from under the parent's own scope.
	if vr := o.parent.Get(name); vr.Declared() {
		if o.values == nil {
			o.values = make(map[string]expand.Variable)
		}
		o.values[name] = expand.Variable{}
	}
}

func (o *overlayEnviron) Each(fn func(name string, vr expand.Variable) bool) {
	done := make(map[string]bool, len(o.values))
	for name, vr := range o.values {
		done[name] = true
		if !vr.Declared() {
			continue // masked deletion; don't surface it
		}
		if !fn(name, vr) {
			return
		}
	}
	if o.parent == nil {
		return
	}
	o.parent.Each(func(name string, vr expand.Variable) bool {
		if done[name] {
			return true
		}
		return fn(name, vr)
	})
}

// lookupVar resolves a variable by name, including the special read-only
// parameters ($#, $@, $?, $$, positional parameters, and so on) that never
// live in the variable store itself.
func (r *Runner) lookupVar(name string) expand.Variable {
	if name == "" {
		panic("variable name must not be empty")
	}
	switch name {
	case "#":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(len(r.Params))}
	case "@", "*":
		return expand.Variable{Set: true, Kind: expand.Indexed, List: r.Params}
	case "?":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(int(r.lastExit.code))}
	case "$":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(os.Getpid())}
	case "PPID":
		return expand.Variable{Set: true, Kind: expand.String, Str: strconv.Itoa(os.Getppid())}
	case "0":
		filename := r.filename
		if filename == "" {
			filename = "cjsh"
		}
		return expand.Variable{Set: true, Kind: expand.String, Str: filename}
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		i := int(name[0] - '1')
		if i < len(r.Params) {
			return expand.Variable{Set: true, Kind: expand.String, Str: r.Params[i]}
		}
		return expand.Variable{}
	}
	if vr := r.writeEnv.Get(name); vr.Declared() {
		return vr
	}
	if runtime.GOOS == "windows" {
		if vr := r.writeEnv.Get(upperName(name)); vr.Declared() {
			return vr
		}
	}
	if r.opts[optNoUnset] {
		r.errf("%s: unbound variable\n", name)
		r.exit.code = 1
		r.exit.exiting = true
	}
	return expand.Variable{}
}

func upperName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// envGet is a convenience wrapper around lookupVar for callers that only
// care about the variable's string value.
func (r *Runner) envGet(name string) string {
	return r.lookupVar(name).String()
}

// setVar writes name=vr through the current overlay (a "local" write lands
// in the innermost function scope; any other write lands in the scope that
// declared name local, if any, otherwise the enclosing non-function scope),
// refusing writes to readonly variables.
func (r *Runner) setVar(name string, vr expand.Variable) {
	cur := r.lookupVar(name)
	if cur.ReadOnly {
		r.errf("%s: readonly variable\n", name)
		r.exit.code = 1
		return
	}
	if vr.Kind == expand.String && r.opts[optAllExport] {
		vr.Exported = true
	}
	vr.Set = true
	if err := r.writeEnv.Set(name, vr); err != nil {
		r.errf("%s: %v\n", name, err)
		r.exit.code = 1
		return
	}
}

func (r *Runner) setVarString(name, value string) {
	r.setVar(name, expand.Variable{Set: true, Kind: expand.String, Str: value})
}

// setVarWithIndex assigns into a single element of an indexed or
// associative array, e.g. "arr[i]=v" or "map[k]=v". A nil index assigns the
// whole variable, same as setVar.
func (r *Runner) setVarWithIndex(prev expand.Variable, name string, index syntax.ArithmExpr, vr expand.Variable) {
	if index == nil {
		r.setVar(name, vr)
		return
	}
	switch prev.Kind {
	case expand.Associative:
		m := prev.Map
		if m == nil {
			m = make(map[string]string)
		}
		k := r.literal(*index.(*syntax.Word))
		m[k] = vr.Str
		prev.Map = m
		prev.Kind = expand.Associative
		prev.Set = true
		r.setVar(name, prev)
	default:
		list := prev.List
		if prev.Kind == expand.String {
			list = []string{prev.Str}
		}
		k := r.arithm(index)
		for len(list) <= k {
			list = append(list, "")
		}
		list[k] = vr.Str
		r.setVar(name, expand.Variable{Set: true, Kind: expand.Indexed, List: list})
	}
}

func (r *Runner) delVar(name string) {
	vr := r.lookupVar(name)
	if vr.ReadOnly {
		r.errf("%s: readonly variable\n", name)
		r.exit.code = 1
		return
	}
	// Delete isn't part of expand.WriteEnviron (unsetting a declared-but-unset
	// variable still differs from it never having existed, which Set's
	// IsSet()-based unset convention can't express), so reach the concrete
	// overlay directly; r.writeEnv is always an *overlayEnviron in this package.
	r.writeEnv.(*overlayEnviron).Delete(name)
}

// assignVal computes the new value a syntax.Assign should produce, given
// the variable's previous value (for += appends) and, for `declare`, the
// requested value type ("-a"/"-A"/"-n").
func (r *Runner) assignVal(prev expand.Variable, as *syntax.Assign, valType string) expand.Variable {
	if as.Naked {
		return prev
	}
	if as.Value != nil {
		s := r.literal(*as.Value)
		if !as.Append || !prev.IsSet() {
			return expand.Variable{Set: true, Kind: expand.String, Str: s}
		}
		switch prev.Kind {
		case expand.Indexed:
			list := append([]string(nil), prev.List...)
			if len(list) == 0 {
				list = append(list, "")
			}
			list[0] += s
			return expand.Variable{Set: true, Kind: expand.Indexed, List: list}
		case expand.Associative:
			return prev // appending to an associative array as a whole is not supported
		default:
			return expand.Variable{Set: true, Kind: expand.String, Str: prev.Str + s}
		}
	}
	if as.Array == nil {
		return expand.Variable{Set: true, Kind: expand.String, Str: ""}
	}
	elems := as.Array.List
	strs := make([]string, len(elems))
	for i := range elems {
		strs[i] = r.literal(elems[i])
	}
	if valType == "-A" {
		m := make(map[string]string, len(strs))
		for i, s := range strs {
			m[strconv.Itoa(i)] = s
		}
		return expand.Variable{Set: true, Kind: expand.Associative, Map: m}
	}
	if as.Append && prev.IsSet() {
		switch prev.Kind {
		case expand.Indexed:
			strs = append(append([]string(nil), prev.List...), strs...)
		case expand.String:
			strs = append([]string{prev.Str}, strs...)
		}
	}
	return expand.Variable{Set: true, Kind: expand.Indexed, List: strs}
}
