// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import "github.com/tombee/switchboard/pkg/workflow/expression"

// defaultGuardEvaluator compiles and caches boolean guard expressions so an
// author's program can gate a Call/ParallelCall on previously-propagated
// cache values (spec.md §8 seed test 6: "a skipped Call guarded by
// cache['x']==2 must not enqueue"). The gating itself stays in the author's
// straight-line program (`if eng.EvaluateGuard("cache.x == 2") { ... }`) so
// the replay/resume algorithm never has to reason about conditional steps.
var defaultGuardEvaluator = expression.New()

// EvaluateGuard reports whether expr evaluates truthily against the
// engine's current cache. An empty expr always evaluates true.
func (e *Engine) EvaluateGuard(expr string) (bool, error) {
	evalCtx := expression.BuildGuardContext(e.GetCache())
	return defaultGuardEvaluator.Evaluate(expr, evalCtx)
}
