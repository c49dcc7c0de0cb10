package internal

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/kvistgaard/arkive/internal/api"
	"github.com/kvistgaard/arkive/internal/database"
	"github.com/kvistgaard/arkive/internal/http/tmdb"
	"github.com/kvistgaard/arkive/internal/ingest"
	"github.com/kvistgaard/arkive/internal/match"
	"github.com/kvistgaard/arkive/internal/upload"
)

// ArkiveConfig is the struct used to contain the various user config
// supplied by file, or manually inside the code. Every field can also
// be set via environment variables, which take precedence over the file.
type ArkiveConfig struct {
	Database      database.DatabaseConfig `yaml:"database" env-required:"true"`
	Tmdb          tmdb.Config             `yaml:"tmdb" env-required:"true"`
	Match         match.Config            `yaml:"matching"`
	Upload        upload.Config           `yaml:"uploads"`
	StorageIssuer upload.IssuerConfig     `yaml:"storage_issuer" env-required:"true"`
	Ingest        ingest.Config           `yaml:"ingestion"`
	RestConfig    api.RestConfig          `yaml:"api"`
}

// LoadFromFile loads a configuration file formatted in YAML in to an
// ArkiveConfig struct ready to be passed to New.
func (config *ArkiveConfig) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration from %s - %w", configPath, err)
	}

	return nil
}
