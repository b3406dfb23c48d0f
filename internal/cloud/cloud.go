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

// Package cloud identifies which cloud provider backs a workflow's
// Storage and Queue implementations.
package cloud

import (
	"fmt"
	"strings"

	"github.com/tombee/switchboard/pkg/errors"
)

// Cloud tags which provider a Storage/Queue implementation targets.
// It replaces the tagged-switch dispatch pattern with compile-time
// exhaustive selection at construction time.
type Cloud string

const (
	// AWS backs Storage with DynamoDB and Queue with SQS.
	AWS Cloud = "AWS"
	// GCP backs Storage with Firestore and Queue with Pub/Sub.
	GCP Cloud = "GCP"
	// Azure backs Storage with a relational backend and Queue with Service Bus.
	Azure Cloud = "AZURE"
	// Custom accepts a user-supplied Storage/Queue implementation — used
	// for tests and bring-your-own transports.
	Custom Cloud = "CUSTOM"
)

// Parse validates a raw cloud string and returns the matching Cloud value.
// Unknown values are a ConfigError, never a panic — this is the single
// place that rejects an unsupported cloud selection.
func Parse(raw string) (Cloud, error) {
	switch c := Cloud(strings.ToUpper(strings.TrimSpace(raw))); c {
	case AWS, GCP, Azure, Custom:
		return c, nil
	default:
		return "", &errors.ConfigError{
			Key:    "cloud",
			Reason: fmt.Sprintf("unsupported cloud %q: must be one of AWS, GCP, AZURE, CUSTOM", raw),
		}
	}
}

// String implements fmt.Stringer.
func (c Cloud) String() string {
	return string(c)
}

// Valid reports whether c is one of the known Cloud values.
func (c Cloud) Valid() bool {
	switch c {
	case AWS, GCP, Azure, Custom:
		return true
	default:
		return false
	}
}
