package embedding

// ONNXOptions configures NewONNXEmbedder.
type ONNXOptions struct {
	ModelPath string
	// SharedLibraryPath locates libonnxruntime; empty uses the platform default.
	SharedLibraryPath string
	Dimensions        int
	MaxTokens         int
	CacheSize         int
}

// OpenAIOptions configures NewOpenAIEmbedder.
type OpenAIOptions struct {
	APIKey string
	// BaseURL overrides the API endpoint for OpenAI-compatible providers.
	BaseURL    string
	Model      string
	Dimensions int
	CacheSize  int
	// BatchSize caps the inputs per request; zero means 256.
	BatchSize int
}
