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

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndDrain(t *testing.T) {
	q := New()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "invocation", `{"ids":[1,0,-1]}`))
	require.NoError(t, q.Send(ctx, "invocation", `{"ids":[1,1,-1]}`))
	require.NoError(t, q.Send(ctx, "executor", `{"task_key":"email.send"}`))

	assert.Equal(t, 2, q.Len("invocation"))
	assert.Equal(t, 1, q.Len("executor"))

	msgs := q.Drain("invocation")
	assert.Equal(t, []string{`{"ids":[1,0,-1]}`, `{"ids":[1,1,-1]}`}, msgs)
	assert.Equal(t, 0, q.Len("invocation"))
	assert.Equal(t, 1, q.Len("executor"))
}

func TestSendAfterCloseFails(t *testing.T) {
	q := New()
	require.NoError(t, q.Close())
	assert.Error(t, q.Send(context.Background(), "invocation", "body"))
}
