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

package storage

import "errors"

// Index errors. Adapters wrap them with the collection or point involved.
var (
	ErrNotFound            = errors.New("no index entry for photo")
	ErrStorageClosed       = errors.New("index is closed")
	ErrInvalidQuery        = errors.New("invalid index request")
	ErrNoCollection        = errors.New("collection does not exist")
	ErrSerializationFailed = errors.New("index entry encoding failed")
)
