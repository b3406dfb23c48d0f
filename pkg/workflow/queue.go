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

import "context"

// Queue sends a serialized Context body to a resolved endpoint. Cloud
// tagging (AWS/GCP/AZURE/CUSTOM) is dispatched by which concrete Queue
// implementation was wired at Init time, not by a runtime switch.
type Queue interface {
	// Send delivers body (a JSON-encoded Context) to endpoint.
	Send(ctx context.Context, endpoint, body string) error
}
