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

package cloud_test

import (
	"testing"

	"github.com/tombee/switchboard/internal/cloud"
	"github.com/tombee/switchboard/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    cloud.Cloud
		wantErr bool
	}{
		{"AWS", cloud.AWS, false},
		{"aws", cloud.AWS, false},
		{"  gcp  ", cloud.GCP, false},
		{"AZURE", cloud.Azure, false},
		{"custom", cloud.Custom, false},
		{"oracle", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := cloud.Parse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.raw)
				}
				var configErr *errors.ConfigError
				if !errors.As(err, &configErr) {
					t.Errorf("expected ConfigError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCloud_Valid(t *testing.T) {
	if !cloud.AWS.Valid() {
		t.Error("AWS should be valid")
	}
	if cloud.Cloud("bogus").Valid() {
		t.Error("bogus should not be valid")
	}
}
