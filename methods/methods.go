package methods

import "strings"

// Kind classifies a canister entry point.
type Kind int

const (
	KindUpdate Kind = iota
	KindQuery
	KindCompositeQuery
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindUpdate:
		return "update"
	case KindQuery:
		return "query"
	case KindCompositeQuery:
		return "composite_query"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Export name prefixes for user-callable methods.
const (
	UpdatePrefix         = "canister_update "
	QueryPrefix          = "canister_query "
	CompositeQueryPrefix = "canister_composite_query "
)

// System method export names.
const (
	SystemInit           = "canister_init"
	SystemPreUpgrade     = "canister_pre_upgrade"
	SystemPostUpgrade    = "canister_post_upgrade"
	SystemInspectMessage = "canister_inspect_message"
	SystemHeartbeat      = "canister_heartbeat"
	SystemGlobalTimer    = "canister_global_timer"
	SystemStart          = "canister_start"
)

var systemMethods = map[string]bool{
	SystemInit:           true,
	SystemPreUpgrade:     true,
	SystemPostUpgrade:    true,
	SystemInspectMessage: true,
	SystemHeartbeat:      true,
	SystemGlobalTimer:    true,
	SystemStart:          true,
}

// Method is a recognized canister entry point.
type Method struct {
	Name string // method name without prefix; the export name for system methods
	Kind Kind
}

// ExportName returns the module export name the method was parsed from.
func (m Method) ExportName() string {
	switch m.Kind {
	case KindUpdate:
		return UpdatePrefix + m.Name
	case KindQuery:
		return QueryPrefix + m.Name
	case KindCompositeQuery:
		return CompositeQueryPrefix + m.Name
	default:
		return m.Name
	}
}

func (m Method) String() string {
	return m.ExportName()
}

// Parser recognizes canister methods among export names.
type Parser interface {
	Parse(exportName string) (Method, bool)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(exportName string) (Method, bool)

// Parse calls f.
func (f ParserFunc) Parse(exportName string) (Method, bool) {
	return f(exportName)
}

// Standard recognizes the canister export naming convention.
var Standard Parser = ParserFunc(Parse)

// Parse recognizes "canister_update <name>", "canister_query <name>",
// "canister_composite_query <name>" and the system method names.
// User method names must be non-empty.
func Parse(exportName string) (Method, bool) {
	for _, p := range []struct {
		prefix string
		kind   Kind
	}{
		{UpdatePrefix, KindUpdate},
		{QueryPrefix, KindQuery},
		{CompositeQueryPrefix, KindCompositeQuery},
	} {
		if name, ok := strings.CutPrefix(exportName, p.prefix); ok {
			if name == "" {
				return Method{}, false
			}
			return Method{Name: name, Kind: p.kind}, true
		}
	}
	if systemMethods[exportName] {
		return Method{Name: exportName, Kind: KindSystem}, true
	}
	return Method{}, false
}

// Collect returns the methods p recognizes among names, in order.
func Collect(p Parser, names []string) []Method {
	if p == nil {
		p = Standard
	}
	var out []Method
	for _, n := range names {
		if m, ok := p.Parse(n); ok {
			out = append(out, m)
		}
	}
	return out
}
