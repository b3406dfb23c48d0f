package expression

// BuildGuardContext creates an expression evaluation context from a run's
// cache, for gating a Call/ParallelCall on previously-propagated values
// (e.g. "cache.x == 2").
//
// The returned map exposes the cache both nested under "cache" and
// flattened to the top level for convenience:
//
//	{
//	    "cache": {"x": 1, "retry_count": 2},
//	    "x": 1,
//	    "retry_count": 2,
//	}
//
// A nil cache produces an empty-but-present "cache" map so guard
// expressions referencing "cache.anything" evaluate to nil rather than
// erroring (expr's AllowUndefinedVariables already tolerates missing keys;
// this just keeps "cache" itself always defined).
func BuildGuardContext(cache map[string]interface{}) map[string]interface{} {
	ctx := make(map[string]interface{})

	if cache != nil {
		ctx["cache"] = cache
	} else {
		ctx["cache"] = make(map[string]interface{})
	}

	if c, ok := ctx["cache"].(map[string]interface{}); ok {
		for k, v := range c {
			if _, exists := ctx[k]; !exists {
				ctx[k] = v
			}
		}
	}

	return ctx
}
