package provider

// Secret names resolved through the secrets store or the environment.
const (
	KeyOpenAIAPIKey = "OPENAI_API_KEY"
	KeyGoogleAPIKey = "GOOGLE_API_KEY"

	KeyAzureAPIBase             = "API_BASE"
	KeyAzureAPIKey              = "API_KEY"
	KeyAzureAPIVersion          = "API_VERSION"
	KeyAzureAPIType             = "API_TYPE"
	KeyAzureSearchAPIVersion    = "AZURE_AI_SEARCH_API_VERSION"
	KeyAzureEmbeddingDeployment = "EMBEDDING_DEPLOYMENT_NAME"
	KeyAzureChatDeployment      = "DEPLOYMENT_NAME_GPT4o"
)

// Model defaults.
const (
	OpenAIEmbeddingModel = "text-embedding-3-large"
	GeminiEmbeddingModel = "text-embedding-004"
	DefaultOpenAIModel   = "gpt-4o"
	DefaultGeminiModel   = "gemini-2.0-flash"

	// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)
