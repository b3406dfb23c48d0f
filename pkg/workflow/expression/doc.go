// Package expression provides guard-expression evaluation for gating a
// Call or ParallelCall on the run's cache.
//
// It uses the expr-lang/expr library to evaluate boolean expressions over
// the values most recently propagated into Context.cache. Expressions
// support:
//
//   - Variable access: cache.x, x (flattened for convenience)
//   - Comparisons: ==, !=, <, >, <=, >=
//   - Boolean logic: &&, ||, !
//   - Membership: "value" in cache.tags (built-in operator)
//   - Custom functions: has(array, element), includes(array, element), length(x)
//
// Example guard expressions:
//
//	cache.x == 2
//	has(cache.tags, "retry")
//	cache.attempt < 3 && !cache.aborted
//
// An empty guard expression always evaluates to true (the call is never
// skipped). The evaluator caches compiled expressions for repeated
// evaluation across invocations of the same step.
//
// Note: the expr library uses "contains" as a string operator (for
// substring matching), so use "in" or "has()" for array membership checks.
package expression
