package database

// Config holds the database configuration.
type Config struct {
	URL           string
	AuthToken     string
	EmbeddingDims int
}
