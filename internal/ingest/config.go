package ingest

import "time"

// Config contains configuration options that control how uploaded
// files are turned into catalog-resolved media records.
type Config struct {
	// Controls the number of workers that resolve records against the
	// external catalog. Caution should be taken to not increase this
	// value too high, as resolution involves talking to external APIs
	// which may impose rate limits.
	ResolutionParallelism int `yaml:"resolution_parallelism" env:"INGEST_RESOLUTION_PARALLELISM" env-default:"2"`

	// Upper bound on the time a single record resolution may spend
	// talking to the external catalog.
	ResolutionTimeoutSeconds int `yaml:"resolution_timeout_seconds" env:"INGEST_RESOLUTION_TIMEOUT_SECONDS" env-default:"30"`
}

func (config *Config) ResolutionTimeout() time.Duration {
	return time.Duration(config.ResolutionTimeoutSeconds) * time.Second
}
