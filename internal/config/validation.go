package config

import "fmt"

// Validate checks all configuration values and fails fast with sentinel
// errors so callers can match specific problems with errors.Is.
func (c *Config) Validate() error {
	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidEmbedder, c.EmbedderDimension)
	}

	if c.TopK <= 0 || c.TopK > 100 {
		return fmt.Errorf("%w: must be in [1, 100], got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MaxHistoryTurns < 0 {
		return fmt.Errorf("%w: must not be negative, got %d", ErrInvalidHistoryLimit, c.MaxHistoryTurns)
	}
	if c.ChunkMaxChars <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunking, c.ChunkMaxChars)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxChars {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d",
			ErrInvalidChunking, c.ChunkMaxChars, c.ChunkOverlap)
	}

	switch c.Backend {
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgres)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port must be in [1, 65535], got %d", ErrInvalidPostgres, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgres)
		}
	case BackendMemory:
		// Nothing to check; postgres settings are ignored.
	default:
		return fmt.Errorf("%w: %q (valid: %s, %s)", ErrInvalidBackend, c.Backend, BackendPostgres, BackendMemory)
	}

	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("%w: rps must be positive, got %v", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < 1 {
		return fmt.Errorf("%w: burst must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitBurst)
	}
	return nil
}
