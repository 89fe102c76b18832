package mock

import "github.com/poiesic/photoscan/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock describer, embedder and answerer instances.
type MockProvider struct {
	describer *MockDescriber
	embedder  *MockEmbedder
	answerer  *MockAnswerer
	closed    bool
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockDescriber()/GetMockEmbedder() to access concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		describer: NewMockDescriber(),
		embedder:  NewMockEmbedder(),
		answerer:  NewMockAnswerer(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
func NewMockProviderWithServices(describer *MockDescriber, embedder *MockEmbedder, answerer *MockAnswerer) ai.AIProvider {
	if answerer == nil {
		answerer = NewMockAnswerer()
	}
	return &MockProvider{
		describer: describer,
		embedder:  embedder,
		answerer:  answerer,
	}
}

// Describer returns the mock describer.
func (p *MockProvider) Describer() ai.Describer {
	return p.describer
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Answerer returns the mock answerer.
func (p *MockProvider) Answerer() ai.Answerer {
	return p.answerer
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockDescriber returns the underlying mock describer for test assertions.
func (p *MockProvider) GetMockDescriber() *MockDescriber {
	return p.describer
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockAnswerer returns the underlying mock answerer for test assertions.
func (p *MockProvider) GetMockAnswerer() *MockAnswerer {
	return p.answerer
}
