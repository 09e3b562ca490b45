// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/CadenFinley/cjsh/syntax"
)

func anyOfLit(v any, vals ...string) string {
	word, _ := v.(*syntax.Word)
	if word == nil || len(word.Parts) != 1 {
		return ""
	}
	lit, ok := word.Parts[0].(*syntax.Lit)
	if !ok {
		return ""
	}
	for _, val := range vals {
		if lit.Value == val {
			return val
		}
	}
	return ""
}

func (cfg *Config) arithm(expr syntax.ArithmExpr) int {
	n, err := Arithm(cfg, expr)
	if err != nil {
		cfg.err(err)
	}
	return n
}

func (cfg *Config) paramExp(pe *syntax.ParamExp) string {
	oldParam := cfg.curParam
	cfg.curParam = pe
	defer func() { cfg.curParam = oldParam }()

	name := pe.Param.Value
	var index syntax.ArithmExpr
	if pe.Ind != nil {
		index = &pe.Ind.Word
	}
	switch name {
	case "@", "*":
		index = &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: name}}}
	}
	vr := cfg.Env.Get(name)
	set := vr.IsSet()

	if cfg.NoUnset && !set && pe.Exp == nil {
		switch name {
		case "@", "*", "#", "?", "$", "!", "0":
		default:
			cfg.err(UnsetParameterError{Expr: pe, Message: name + ": unbound variable"})
		}
	}

	str := cfg.varStr(vr, 0)
	if index != nil {
		str = cfg.varInd(vr, index, 0)
	}
	slicePos := func(expr syntax.ArithmExpr) int {
		p := cfg.arithm(expr)
		if p < 0 {
			p = len(str) + p
			if p < 0 {
				p = len(str)
			}
		} else if p > len(str) {
			p = len(str)
		}
		return p
	}
	elems := []string{str}
	if anyOfLit(index, "@", "*") != "" && vr.Kind == Indexed {
		elems = vr.List
	}
	switch {
	case pe.Length:
		n := len(elems)
		if anyOfLit(index, "@", "*") == "" {
			n = utf8.RuneCountInString(str)
		}
		str = strconv.Itoa(n)
	case pe.Slice != nil:
		if pe.Slice.Offset.Parts != nil {
			offset := slicePos(&pe.Slice.Offset)
			str = str[offset:]
		}
		if pe.Slice.Length.Parts != nil {
			length := slicePos(&pe.Slice.Length)
			if length < len(str) {
				str = str[:length]
			}
		}
	case pe.Repl != nil:
		orig, err := Pattern(cfg, &pe.Repl.Orig)
		if err != nil {
			cfg.err(err)
		}
		with, err := Literal(cfg, &pe.Repl.With)
		if err != nil {
			cfg.err(err)
		}
		n := 1
		if pe.Repl.All {
			n = -1
		}
		locs := findAllIndex(orig, str, n)
		buf := cfg.strBuilder()
		last := 0
		for _, loc := range locs {
			buf.WriteString(str[last:loc[0]])
			buf.WriteString(with)
			last = loc[1]
		}
		buf.WriteString(str[last:])
		str = buf.String()
	case pe.Exp != nil:
		arg, err := Literal(cfg, &pe.Exp.Word)
		if err != nil {
			cfg.err(err)
		}
		switch op := pe.Exp.Op; op {
		case syntax.SubstColPlus:
			if str == "" {
				break
			}
			fallthrough
		case syntax.SubstPlus:
			if set {
				str = arg
			}
		case syntax.SubstMinus:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColMinus:
			if str == "" {
				str = arg
			}
		case syntax.SubstQuest:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColQuest:
			if str == "" {
				msg := arg
				if msg == "" {
					msg = "parameter null or not set"
				}
				cfg.err(UnsetParameterError{Expr: pe, Message: msg})
			}
		case syntax.SubstAssgn:
			if set {
				break
			}
			fallthrough
		case syntax.SubstColAssgn:
			if str == "" {
				if err := cfg.envSet(name, arg); err != nil {
					cfg.err(err)
				}
				str = arg
			}
		case syntax.RemSmallPrefix, syntax.RemLargePrefix,
			syntax.RemSmallSuffix, syntax.RemLargeSuffix:
			suffix := op == syntax.RemSmallSuffix || op == syntax.RemLargeSuffix
			large := op == syntax.RemLargePrefix || op == syntax.RemLargeSuffix
			for i, elem := range elems {
				elems[i] = removePattern(elem, arg, suffix, large)
			}
			str = strings.Join(elems, " ")
		case syntax.UpperFirst, syntax.UpperAll,
			syntax.LowerFirst, syntax.LowerAll:
			caseFunc := unicode.ToLower
			if op == syntax.UpperFirst || op == syntax.UpperAll {
				caseFunc = unicode.ToUpper
			}
			all := op == syntax.UpperAll || op == syntax.LowerAll

			expr, err := syntax.TranslatePattern(arg, false)
			if err != nil {
				return str
			}
			rx := regexp.MustCompile(expr)

			for i, elem := range elems {
				rs := []rune(elem)
				for ri, r := range rs {
					if rx.MatchString(string(r)) {
						rs[ri] = caseFunc(r)
						if !all {
							break
						}
					}
				}
				elems[i] = string(rs)
			}
			str = strings.Join(elems, " ")
		case syntax.OtherParamOps:
			switch arg {
			case "Q":
				str = strconv.Quote(str)
			case "E":
				tail := str
				var rns []rune
				for tail != "" {
					var rn rune
					rn, _, tail, _ = strconv.UnquoteChar(tail, 0)
					rns = append(rns, rn)
				}
				str = string(rns)
			case "a":
				str = varAttrs(vr)
			default:
				cfg.err(fmt.Errorf("unhandled @%s param expansion", arg))
			}
		}
	}
	return str
}

func varAttrs(vr Variable) string {
	var attrs []byte
	if vr.Exported {
		attrs = append(attrs, 'x')
	}
	if vr.ReadOnly {
		attrs = append(attrs, 'r')
	}
	switch vr.Kind {
	case Indexed:
		attrs = append(attrs, 'a')
	case Associative:
		attrs = append(attrs, 'A')
	case NameRef:
		attrs = append(attrs, 'n')
	}
	return string(attrs)
}

func removePattern(str, pattern string, fromEnd, greedy bool) string {
	expr, err := syntax.TranslatePattern(pattern, greedy)
	if err != nil {
		return str
	}
	switch {
	case fromEnd && !greedy:
		expr = ".*(" + expr + ")$"
	case fromEnd:
		expr = "(" + expr + ")$"
	default:
		expr = "^(" + expr + ")"
	}
	rx := regexp.MustCompile(expr)
	if loc := rx.FindStringSubmatchIndex(str); loc != nil {
		str = str[:loc[2]] + str[loc[3]:]
	}
	return str
}

func (cfg *Config) varStr(vr Variable, depth int) string {
	if depth > maxNameRefDepth {
		return ""
	}
	if vr.Kind == NameRef {
		vr = cfg.Env.Get(vr.Str)
		return cfg.varStr(vr, depth+1)
	}
	return vr.String()
}

func (cfg *Config) varInd(vr Variable, idx syntax.ArithmExpr, depth int) string {
	if depth > maxNameRefDepth {
		return ""
	}
	switch vr.Kind {
	case NameRef:
		vr = cfg.Env.Get(vr.Str)
		return cfg.varInd(vr, idx, depth+1)
	case Indexed:
		switch anyOfLit(idx, "@", "*") {
		case "@":
			return strings.Join(vr.List, " ")
		case "*":
			return cfg.ifsJoin(vr.List)
		}
		i := cfg.arithm(idx)
		if i >= 0 && i < len(vr.List) {
			return vr.List[i]
		}
		return ""
	case Associative:
		if lit := anyOfLit(idx, "@", "*"); lit != "" {
			keys := make([]string, 0, len(vr.Map))
			for k := range vr.Map {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			strs := make([]string, len(keys))
			for i, k := range keys {
				strs[i] = vr.Map[k]
			}
			if lit == "*" {
				return cfg.ifsJoin(strs)
			}
			return strings.Join(strs, " ")
		}
		key, err := Literal(cfg, idx.(*syntax.Word))
		if err != nil {
			cfg.err(err)
		}
		return vr.Map[key]
	default:
		if cfg.arithm(idx) == 0 {
			return vr.String()
		}
		return ""
	}
}

func (cfg *Config) namesByPrefix(prefix string) []string {
	var names []string
	cfg.Env.Each(func(name string, vr Variable) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	return names
}
