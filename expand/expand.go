// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os/user"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/CadenFinley/cjsh/syntax"
)

// Config defines the shell state that word expansion reads from and, for
// operations like ${x:=y} and arithmetic assignment, writes back to.
//
// A zero Config is not usable; at the very least Env must be set.
type Config struct {
	// Env is queried for variable values and is where any expansion that
	// mutates state, such as ${x:=y}, writes its result.
	Env WriteEnviron

	// CmdSubst runs the given command substitution, writing its standard
	// output to the writer.
	CmdSubst func(io.Writer, *syntax.CmdSubst) error

	// ProcSubst runs the given process substitution and returns the path
	// that the calling program can read from or write to in its place.
	ProcSubst func(*syntax.ProcSubst) (string, error)

	// ReadDir2 lists the entries of a directory for globbing purposes. A
	// nil value disables globbing entirely, as if noglob were set.
	ReadDir2 func(string) ([]fs.DirEntry, error)

	GlobStar   bool // support the ** pattern
	NoCaseGlob bool // case-insensitive glob matching
	NullGlob   bool // a glob with no matches expands to zero fields
	NoUnset    bool // error out when expanding an unset parameter

	ifs      string
	curParam *syntax.ParamExp

	bufferAlloc bytes.Buffer
	fieldAlloc  [4]fieldPart
	fieldsAlloc [4][]fieldPart
}

// expandErr is used with panic/recover to unwind out of the deeply recursive
// word-expansion helpers as soon as something goes wrong, without having to
// thread an error return through every single one of them.
type expandErr struct{ err error }

func (cfg *Config) err(err error) {
	panic(expandErr{err})
}

func catch(errp *error) {
	if r := recover(); r != nil {
		if e, ok := r.(expandErr); ok {
			*errp = e.err
			return
		}
		panic(r)
	}
}

func (cfg *Config) prepareIFS() {
	vr := cfg.Env.Get("IFS")
	if !vr.IsSet() {
		cfg.ifs = " \t\n"
	} else {
		cfg.ifs = vr.String()
	}
}

func (cfg *Config) ifsRune(r rune) bool {
	for _, r2 := range cfg.ifs {
		if r == r2 {
			return true
		}
	}
	return false
}

func (cfg *Config) ifsJoin(strs []string) string {
	sep := ""
	if cfg.ifs != "" {
		sep = cfg.ifs[:1]
	}
	return strings.Join(strs, sep)
}

func (cfg *Config) strBuilder() *bytes.Buffer {
	b := &cfg.bufferAlloc
	b.Reset()
	return b
}

func (cfg *Config) envGet(name string) string {
	return cfg.Env.Get(name).String()
}

func (cfg *Config) envSet(name, value string) error {
	return cfg.Env.Set(name, Variable{Set: true, Kind: String, Str: value})
}

// UnsetParameterError is returned, or passed to [Config]'s error handling,
// when a parameter expansion of the form ${x?msg} or ${x:?msg} triggers
// because x is unset or, for the colon form, empty.
type UnsetParameterError struct {
	Expr    *syntax.ParamExp
	Message string
}

func (u UnsetParameterError) Error() string {
	return u.Message
}

// Literal expands a word without doing any field splitting or globbing. It is
// used for contexts such as assignment values, here-document bodies and the
// right-hand side of case patterns before translation.
func Literal(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	var err error
	defer catch(&err)
	field := cfg.wordField(word.Parts, quoteDouble)
	return cfg.fieldJoin(field), err
}

// Document expands a word the way a here-document body is expanded: like a
// double-quoted literal, but without removing backslashes that don't escape
// one of the special here-document characters.
func Document(cfg *Config, word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	var err error
	defer catch(&err)
	field := cfg.wordField(word.Parts, quoteHeredoc)
	return cfg.fieldJoin(field), err
}

// Pattern expands a word as an extended glob pattern, suitable for
// [syntax.TranslatePattern]. Quoted parts of the word are escaped so that
// they are matched literally.
func Pattern(cfg *Config, word *syntax.Word) (string, error) {
	var err error
	defer catch(&err)
	field := cfg.wordField(word.Parts, quoteSingle)
	buf := cfg.strBuilder()
	for _, part := range field {
		if part.quote > quoteNone {
			buf.WriteString(syntax.QuotePattern(part.val))
		} else {
			buf.WriteString(part.val)
		}
	}
	return buf.String(), err
}

// Fields expands a number of words as if they were arguments to a simple
// command, performing brace expansion, parameter/command substitution,
// field splitting on IFS, and filename generation.
func Fields(cfg *Config, words ...*syntax.Word) (fields []string, err error) {
	defer catch(&err)
	cfg.prepareIFS()

	fields = make([]string, 0, len(words))
	dir := cfg.envGet("PWD")
	baseDir := syntax.QuotePattern(dir)
	for _, word := range words {
		for _, expWord := range Braces(word) {
			for _, field := range cfg.wordFields(expWord.Parts) {
				path, doGlob := cfg.escapedGlobField(field)
				var matches []string
				abs := filepath.IsAbs(path)
				if doGlob && cfg.ReadDir2 != nil {
					if !abs {
						path = filepath.Join(baseDir, path)
					}
					matches = cfg.glob(path)
					if len(matches) == 0 && cfg.NullGlob {
						continue
					}
				}
				if len(matches) == 0 {
					fields = append(fields, cfg.fieldJoin(field))
					continue
				}
				for _, match := range matches {
					if !abs {
						endSep := strings.HasSuffix(match, string(filepath.Separator))
						match, _ = filepath.Rel(dir, match)
						if endSep {
							match += string(filepath.Separator)
						}
					}
					fields = append(fields, match)
				}
			}
		}
	}
	return fields, nil
}

// Format implements the formatting rules of the printf and echo -e builtins:
// %-style verbs are substituted using args, and backslash escapes are
// expanded. It returns the formatted string and the number of args consumed.
func Format(cfg *Config, format string, args []string) (string, int, error) {
	buf := cfg.strBuilder()
	esc := false
	var fmts []rune
	initialArgs := len(args)

	for _, r := range format {
		switch {
		case esc:
			esc = false
			switch r {
			case 'n':
				buf.WriteRune('\n')
			case 'r':
				buf.WriteRune('\r')
			case 't':
				buf.WriteRune('\t')
			case '\\':
				buf.WriteRune('\\')
			default:
				buf.WriteRune('\\')
				buf.WriteRune(r)
			}

		case len(fmts) > 0:
			switch r {
			case '%':
				buf.WriteByte('%')
				fmts = nil
			case 'c':
				var b byte
				if len(args) > 0 {
					arg := ""
					arg, args = args[0], args[1:]
					if len(arg) > 0 {
						b = arg[0]
					}
				}
				buf.WriteByte(b)
				fmts = nil
			case '+', '-', ' ':
				if len(fmts) > 1 {
					return "", 0, fmt.Errorf("invalid format char: %c", r)
				}
				fmts = append(fmts, r)
			case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
				fmts = append(fmts, r)
			case 's', 'd', 'i', 'u', 'o', 'x':
				arg := ""
				if len(args) > 0 {
					arg, args = args[0], args[1:]
				}
				var farg interface{} = arg
				if r != 's' {
					n, _ := strconv.ParseInt(arg, 0, 0)
					if r == 'i' || r == 'd' {
						farg = int(n)
					} else {
						farg = uint(n)
					}
					if r == 'i' || r == 'u' {
						r = 'd'
					}
				}
				fmts = append(fmts, r)
				fmt.Fprintf(buf, string(fmts), farg)
				fmts = nil
			default:
				return "", 0, fmt.Errorf("invalid format char: %c", r)
			}
		case r == '\\':
			esc = true
		case args != nil && r == '%':
			fmts = []rune{r}
		default:
			buf.WriteRune(r)
		}
	}
	if len(fmts) > 0 {
		return "", 0, fmt.Errorf("missing format char")
	}
	return buf.String(), initialArgs - len(args), nil
}

// ReadFields splits s on IFS into at most n fields, the way the read builtin
// does. If raw, backslashes are kept instead of being used as an escape.
func ReadFields(cfg *Config, s string, n int, raw bool) []string {
	cfg.prepareIFS()
	type pos struct{ start, end int }
	var fpos []pos

	runes := make([]rune, 0, len(s))
	infield := false
	esc := false
	for _, r := range s {
		if infield {
			if cfg.ifsRune(r) && (raw || !esc) {
				fpos[len(fpos)-1].end = len(runes)
				infield = false
			}
		} else {
			if !cfg.ifsRune(r) && (raw || !esc) {
				fpos = append(fpos, pos{start: len(runes), end: -1})
				infield = true
			}
		}
		if r == '\\' {
			if raw || esc {
				runes = append(runes, r)
			}
			esc = !esc
			continue
		}
		runes = append(runes, r)
		esc = false
	}
	if len(fpos) == 0 {
		return nil
	}
	if infield {
		fpos[len(fpos)-1].end = len(runes)
	}

	switch {
	case n == 1:
		fpos[0].start, fpos[0].end = 0, len(runes)
		fpos = fpos[:1]
	case n != -1 && n < len(fpos):
		fpos[n-1].end = fpos[len(fpos)-1].end
		fpos = fpos[:n]
	}

	fields := make([]string, len(fpos))
	for i, p := range fpos {
		fields[i] = string(runes[p.start:p.end])
	}
	return fields
}

type fieldPart struct {
	val   string
	quote quoteLevel
}

type quoteLevel uint

const (
	quoteNone quoteLevel = iota
	quoteDouble
	quoteSingle
	quoteHeredoc
)

func (cfg *Config) fieldJoin(parts []fieldPart) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0].val
	}
	buf := cfg.strBuilder()
	for _, part := range parts {
		buf.WriteString(part.val)
	}
	return buf.String()
}

func (cfg *Config) escapedGlobField(parts []fieldPart) (escaped string, glob bool) {
	buf := cfg.strBuilder()
	for _, part := range parts {
		if part.quote > quoteNone {
			buf.WriteString(syntax.QuotePattern(part.val))
			continue
		}
		buf.WriteString(part.val)
		if syntax.HasPattern(part.val) {
			glob = true
		}
	}
	if glob {
		escaped = buf.String()
	}
	return escaped, glob
}

func (cfg *Config) wordField(wps []syntax.WordPart, ql quoteLevel) []fieldPart {
	var field []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandUser(s)
			}
			if (ql == quoteDouble || ql == quoteHeredoc) && strings.Contains(s, "\\") {
				buf := cfg.strBuilder()
				for i := 0; i < len(s); i++ {
					b := s[i]
					if b == '\\' && i+1 < len(s) {
						switch s[i+1] {
						case '\n':
							i++
							continue
						case '"':
							if ql == quoteDouble {
								continue
							}
						case '\\', '$', '`':
							continue
						}
					}
					buf.WriteByte(b)
				}
				s = buf.String()
			}
			field = append(field, fieldPart{val: s})
		case *syntax.SglQuoted:
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				fp.val, _, _ = Format(cfg, fp.val, nil)
			}
			field = append(field, fp)
		case *syntax.DblQuoted:
			for _, part := range cfg.wordField(x.Parts, quoteDouble) {
				part.quote = quoteDouble
				field = append(field, part)
			}
		case *syntax.ParamExp:
			field = append(field, fieldPart{val: cfg.paramExp(x)})
		case *syntax.CmdSubst:
			field = append(field, fieldPart{val: cfg.cmdSubst(x)})
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				cfg.err(err)
			}
			field = append(field, fieldPart{val: strconv.Itoa(n)})
		case *syntax.ProcSubst:
			path, err := cfg.procSubst(x)
			if err != nil {
				cfg.err(err)
			}
			field = append(field, fieldPart{quote: quoteDouble, val: path})
		case *syntax.ExtGlob:
			field = append(field, fieldPart{val: x.Op.String() + x.Pattern.Value + ")"})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	return field
}

func (cfg *Config) cmdSubst(cs *syntax.CmdSubst) string {
	if cfg.CmdSubst == nil {
		cfg.err(fmt.Errorf("command substitution is not supported in this context"))
	}
	buf := cfg.strBuilder()
	if err := cfg.CmdSubst(buf, cs); err != nil {
		cfg.err(err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (cfg *Config) procSubst(ps *syntax.ProcSubst) (string, error) {
	if cfg.ProcSubst == nil {
		return "", fmt.Errorf("process substitution is not supported in this context")
	}
	return cfg.ProcSubst(ps)
}

func (cfg *Config) wordFields(wps []syntax.WordPart) [][]fieldPart {
	fields := cfg.fieldsAlloc[:0]
	curField := cfg.fieldAlloc[:0]
	allowEmpty := false
	flush := func() {
		if len(curField) == 0 {
			return
		}
		fields = append(fields, curField)
		curField = nil
	}
	splitAdd := func(val string) {
		for i, field := range strings.FieldsFunc(val, cfg.ifsRune) {
			if i > 0 {
				flush()
			}
			curField = append(curField, fieldPart{val: field})
		}
	}
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandUser(s)
			}
			if strings.Contains(s, "\\") {
				buf := cfg.strBuilder()
				for i := 0; i < len(s); i++ {
					b := s[i]
					if b == '\\' && i+1 < len(s) {
						i++
						b = s[i]
					}
					buf.WriteByte(b)
				}
				s = buf.String()
			}
			curField = append(curField, fieldPart{val: s})
		case *syntax.SglQuoted:
			allowEmpty = true
			fp := fieldPart{quote: quoteSingle, val: x.Value}
			if x.Dollar {
				fp.val, _, _ = Format(cfg, fp.val, nil)
			}
			curField = append(curField, fp)
		case *syntax.DblQuoted:
			allowEmpty = true
			if len(x.Parts) == 1 {
				pe, _ := x.Parts[0].(*syntax.ParamExp)
				if elems := cfg.quotedElems(pe); elems != nil {
					for i, elem := range elems {
						if i > 0 {
							flush()
						}
						curField = append(curField, fieldPart{quote: quoteDouble, val: elem})
					}
					continue
				}
			}
			for _, part := range cfg.wordField(x.Parts, quoteDouble) {
				part.quote = quoteDouble
				curField = append(curField, part)
			}
		case *syntax.ParamExp:
			splitAdd(cfg.paramExp(x))
		case *syntax.CmdSubst:
			splitAdd(cfg.cmdSubst(x))
		case *syntax.ArithmExp:
			n, err := Arithm(cfg, x.X)
			if err != nil {
				cfg.err(err)
			}
			curField = append(curField, fieldPart{val: strconv.Itoa(n)})
		case *syntax.ProcSubst:
			path, err := cfg.procSubst(x)
			if err != nil {
				cfg.err(err)
			}
			allowEmpty = true
			curField = append(curField, fieldPart{quote: quoteDouble, val: path})
		case *syntax.ExtGlob:
			curField = append(curField, fieldPart{val: x.Op.String() + x.Pattern.Value + ")"})
		default:
			panic(fmt.Sprintf("unhandled word part: %T", x))
		}
	}
	flush()
	if allowEmpty && len(fields) == 0 {
		fields = append(fields, curField)
	}
	return fields
}

// quotedElems reports the elements of a parameter expansion that is exactly
// "${@}" or "${name[@]}", so that each expands into its own field even
// though the whole expansion sits inside double quotes.
func (cfg *Config) quotedElems(pe *syntax.ParamExp) []string {
	if pe == nil || pe.Length {
		return nil
	}
	if pe.Param.Value == "@" {
		return cfg.Env.Get("@").List
	}
	if pe.Ind == nil || anyOfLit(&pe.Ind.Word, "@") == "" {
		return nil
	}
	vr := cfg.Env.Get(pe.Param.Value)
	if vr.Kind == Indexed {
		return vr.List
	}
	return nil
}

func (cfg *Config) expandUser(field string) string {
	if len(field) == 0 || field[0] != '~' {
		return field
	}
	name := field[1:]
	rest := ""
	if i := strings.Index(name, "/"); i >= 0 {
		rest = name[i:]
		name = name[:i]
	}
	if name == "" {
		return cfg.envGet("HOME") + rest
	}
	u, err := user.Lookup(name)
	if err != nil {
		return field
	}
	return u.HomeDir + rest
}

func findAllIndex(pattern, name string, n int) [][]int {
	expr, err := syntax.TranslatePattern(pattern, true)
	if err != nil {
		return nil
	}
	rx := regexp.MustCompile(expr)
	return rx.FindAllStringIndex(name, n)
}

func hasGlob(path string) bool {
	magicChars := `*?[`
	if runtime.GOOS != "windows" {
		magicChars = `*?[\`
	}
	return strings.ContainsAny(path, magicChars)
}

var rxGlobStar = regexp.MustCompile(".*")

func (cfg *Config) glob(pattern string) []string {
	parts := strings.Split(pattern, string(filepath.Separator))
	matches := []string{"."}
	if filepath.IsAbs(pattern) {
		if parts[0] == "" {
			matches[0] = string(filepath.Separator)
		} else {
			matches[0] = parts[0] + string(filepath.Separator)
		}
		parts = parts[1:]
	}
	for _, part := range parts {
		if part == "**" && cfg.GlobStar {
			for i := range matches {
				matches[i] += string(filepath.Separator)
			}
			latest := matches
			for {
				var newMatches []string
				for _, dir := range latest {
					newMatches = cfg.globDir(dir, rxGlobStar, newMatches)
				}
				if len(newMatches) == 0 {
					break
				}
				matches = append(matches, newMatches...)
				latest = newMatches
			}
			continue
		}
		expr, err := syntax.TranslatePattern(part, true)
		if err != nil {
			return nil
		}
		if cfg.NoCaseGlob {
			expr = "(?i)" + expr
		}
		rx := regexp.MustCompile("^" + expr + "$")
		var newMatches []string
		for _, dir := range matches {
			newMatches = cfg.globDir(dir, rx, newMatches)
		}
		matches = newMatches
	}
	return matches
}

func (cfg *Config) globDir(dir string, rx *regexp.Regexp, matches []string) []string {
	if cfg.ReadDir2 == nil {
		return nil
	}
	entries, err := cfg.ReadDir2(dir)
	if err != nil {
		return nil
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasPrefix(rx.String(), `^\.`) && !strings.HasPrefix(rx.String(), "(?i)^\\.") && name[0] == '.' {
			continue
		}
		if rx.MatchString(name) {
			matches = append(matches, filepath.Join(dir, name))
		}
	}
	return matches
}
