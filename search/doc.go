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

// Package search answers natural-language questions about a photo library.
//
// The Searcher embeds the question with the same model used for photo
// descriptions and looks up the nearest photos in the vector index. Photos
// whose descriptions contain every significant word of the question get a
// small score boost. Ask additionally hands the matching descriptions to a
// text model, which composes an answer from them.
package search
