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

import "errors"

// Run-level errors. These abort a run before any items are dispatched.
var (
	// ErrInvalidRoot indicates the library root does not exist or is not a directory.
	ErrInvalidRoot = errors.New("invalid root")

	// ErrIndexSchemaMismatch indicates the vector collection dimensionality
	// differs from the embedding dimensionality.
	ErrIndexSchemaMismatch = errors.New("index schema mismatch")
)

// Per-item errors. These are recorded against a single photo and never
// stop sibling work.
var (
	// ErrMetadataUnreadable indicates the file's metadata could not be parsed.
	ErrMetadataUnreadable = errors.New("metadata unreadable")

	// ErrInferenceUnavailable indicates the inference backend failed after all retries.
	ErrInferenceUnavailable = errors.New("inference unavailable")

	// ErrInferenceRejected indicates the inference backend refused the request
	// and retrying would not help.
	ErrInferenceRejected = errors.New("inference rejected")

	// ErrMetadataWriteFailed indicates new metadata could not be committed.
	// The file is left in its previous state.
	ErrMetadataWriteFailed = errors.New("metadata write failed")

	// ErrIndexUpsertFailed indicates the vector index rejected or could not store a point.
	ErrIndexUpsertFailed = errors.New("index upsert failed")
)

// Validation errors.
var (
	// ErrEmptyDescription indicates a description with no text.
	ErrEmptyDescription = errors.New("description cannot be empty")

	// ErrEmptyVector indicates an embedding with no components.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrDimensionMismatch indicates a vector whose length differs from the expected dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidRoot, "InvalidRoot"},
	{ErrIndexSchemaMismatch, "IndexSchemaMismatch"},
	{ErrMetadataUnreadable, "MetadataUnreadable"},
	{ErrInferenceUnavailable, "InferenceUnavailable"},
	{ErrInferenceRejected, "InferenceRejected"},
	{ErrMetadataWriteFailed, "MetadataWriteFailed"},
	{ErrIndexUpsertFailed, "IndexUpsertFailed"},
}

// ErrorKind returns the taxonomy name of err, or "Unknown".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// IsFatal reports whether err should abort the whole run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidRoot) || errors.Is(err, ErrIndexSchemaMismatch)
}
