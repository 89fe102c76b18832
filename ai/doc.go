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

// Package ai provides abstractions for the model services used by photoscan.
//
// This package defines interfaces for image description, text embedding and
// question answering. The pipeline and searcher depend on these abstractions
// rather than on a concrete model server.
//
// # Interfaces
//
//   - Describer: Writes a caption for a JPEG image
//   - Embedder: Generates vector embeddings from text
//   - Answerer: Answers a question from a list of options
//   - AIProvider: Aggregates the services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs (Ollama, vLLM, OpenAI) via langchaingo
//   - ai/vertex: Gemini on Vertex AI for descriptions and answers
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Retries
//
// Providers make a single attempt per call. Client wraps a provider with a
// retry.Policy: each attempt gets its own timeout, transient failures are
// retried with backoff, and errors marked retry.Permanent fail at once.
// Failures surface as core.ErrInferenceRejected or core.ErrInferenceUnavailable.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := ai.NewClient(provider, retry.DefaultPolicy())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	desc, err := client.Describe(ctx, ai.DescribeRequest{Image: jpegBytes})
//	vector, err := client.EmbedText(ctx, desc.Text)
package ai
