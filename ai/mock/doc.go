// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Describer, ai.Embedder,
// ai.Answerer and ai.AIProvider for use in unit tests. The mocks allow tests to
// run without a model server and are safe for use from concurrent workers.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	desc, err := mockProvider.Describer().Describe(ctx, req)
//
//	// Failure injection
//	describer := mock.NewMockDescriber().
//	    WithDescribeFunc(func(ctx context.Context, req ai.DescribeRequest) (*core.Description, error) {
//	        return nil, errors.New("connection refused")
//	    })
//
//	// Check call counts
//	count := describer.CallCount()
//
// # Default Behavior
//
//   - MockDescriber: Returns a caption derived from the file name
//   - MockEmbedder: Returns deterministic unit vectors based on text hash
//   - MockAnswerer: Returns the first option
package mock
