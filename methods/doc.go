// Package methods recognizes canister entry points among module exports.
//
// A canister exposes user methods as exports named "canister_update <name>",
// "canister_query <name>" or "canister_composite_query <name>", and system
// hooks under fixed names such as "canister_init" or "canister_start".
// Recognition is behind the Parser interface so hosts can plug in their own
// convention:
//
//	p := methods.Restrict(methods.Standard, methods.KindUpdate, methods.KindQuery)
//	found := methods.Collect(p, exportNames)
package methods
