package constants

// Classification labels that are not test-type codes.
const (
	MultipleTests = "Multiple Tests"
	UnknownTest   = "Unknown"
	UnknownLab    = "Unknown Lab"
)

// Strategy names selectable through EXTRACTION_STRATEGY.
const (
	StrategyRules = "rules"
	StrategyAI    = "ai"
)

// AI providers selectable through AI_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// UnknownTestTypeCode is stored for panels whose test type could not be determined.
const UnknownTestTypeCode = "UNKNOWN"

// Document processing states.
const (
	DocumentReceived  = "RECEIVED"
	DocumentProcessed = "PROCESSED"
	DocumentFailed    = "FAILED"
)
