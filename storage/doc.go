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

// Package storage provides the vector index abstraction for photoscan.
//
// A VectorIndex holds one point per photo: the embedding of its description
// plus a small payload (path, description, folder, model, generation time).
// Point identifiers are derived from the photo path with core.PhotoID, so
// re-indexing a photo overwrites its previous entry.
//
// # Backends
//
//   - storage/badger: embedded BadgerDB store with a brute-force cosine scan.
//   - storage/qdrant: Qdrant over gRPC.
//   - storage/pgvector: PostgreSQL with the pgvector extension.
//
// # Usage
//
//	idx, err := badger.Open("/var/lib/photoscan/index", "photos")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	if err := idx.EnsureCollection(ctx, 1024); err != nil {
//	    log.Fatal(err)
//	}
//
// Wrap any backend with NewRetrying to apply the shared retry policy.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
