// Copyright 2025 Poiesic Systems
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

package core

import (
	"fmt"
	"strings"
)

// ValidateDescription validates a generated Description.
//
// Validation rules:
//   - Description must not be nil
//   - Text must contain something other than whitespace
//
// NOT validated:
//   - Model (empty when the description was read back from a file)
//   - Duration and GeneratedAt (informational only)
func ValidateDescription(desc *Description) error {
	if desc == nil {
		return fmt.Errorf("%w: description is nil", ErrEmptyDescription)
	}
	if strings.TrimSpace(desc.Text) == "" {
		return ErrEmptyDescription
	}
	return nil
}

// ValidateVector checks that an embedding is non-empty and, when dim is
// positive, that it has exactly dim components.
func ValidateVector(vector []float32, dim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}
