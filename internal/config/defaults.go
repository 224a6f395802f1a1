package config

import "time"

// Default values for optional configuration parameters.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDBPath = "storage.db" // Default SQLite database file

	DefaultAIModel           = "gemini-2.0-flash"
	DefaultAIImageModel      = "imagen-3.0-generate-002"
	DefaultAITemperature     = 0.7
	DefaultAIMaxOutputTokens = 2000
	DefaultAITimeout         = 2 * time.Minute
	DefaultAIMaxRetries      = 2
	DefaultAIRetryDelay      = 5 * time.Second

	// DefaultPricePer1KTokens is the estimated cost per 1000 tokens shown by
	// the balance query. Configuration, not provider pricing knowledge.
	DefaultPricePer1KTokens = 0.03

	DefaultModesPageSize = 6 // Modes per keyboard page

	DefaultHealthAddr = ":8080"
)
