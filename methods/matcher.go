package methods

import "strings"

// Restrict narrows p to methods of the given kinds. A nil p means Standard.
func Restrict(p Parser, kinds ...Kind) Parser {
	if p == nil {
		p = Standard
	}
	allowed := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return ParserFunc(func(name string) (Method, bool) {
		m, ok := p.Parse(name)
		if !ok || !allowed[m.Kind] {
			return Method{}, false
		}
		return m, true
	})
}

// Allow narrows p to methods whose export name matches a pattern.
//
// Supports patterns like:
//   - "canister_update inc" - exact export name
//   - "canister_query *" - every export with this prefix
//   - "*" - everything p recognizes
func Allow(p Parser, patterns ...string) Parser {
	if p == nil {
		p = Standard
	}
	var (
		exact    = make(map[string]bool)
		prefixes []string
		matchAll bool
	)
	for _, pat := range patterns {
		switch {
		case pat == "*":
			matchAll = true
		case strings.HasSuffix(pat, "*"):
			prefixes = append(prefixes, strings.TrimSuffix(pat, "*"))
		default:
			exact[pat] = true
		}
	}
	return ParserFunc(func(name string) (Method, bool) {
		m, ok := p.Parse(name)
		if !ok {
			return Method{}, false
		}
		if matchAll || exact[name] {
			return m, true
		}
		for _, prefix := range prefixes {
			if strings.HasPrefix(name, prefix) {
				return m, true
			}
		}
		return Method{}, false
	})
}

// Composite returns a parser that tries each parser in order.
func Composite(parsers ...Parser) Parser {
	return ParserFunc(func(name string) (Method, bool) {
		for _, p := range parsers {
			if m, ok := p.Parse(name); ok {
				return m, true
			}
		}
		return Method{}, false
	})
}
