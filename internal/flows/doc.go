// Package flows contains the orchestration behind the engine's login,
// refresh, authenticate and logout operations.
//
// Each Run function takes a dependency struct of funcs and sentinel errors
// and returns a result carrying a failure kind, so the root package can map
// failures to its public errors, metrics and audit events.
//
// # What this package must NOT do
//
//   - Hold state between calls.
//   - Import the root package, session or account; those are reached only
//     through the injected dependencies.
package flows
