package odm

import (
	"encoding/json"

	"github.com/autom8ter/odm/errors"
	"github.com/autom8ter/odm/storage"
	"github.com/autom8ter/odm/util"
)

// Config configures a DB
type Config struct {
	// Storage selects the storage provider
	Storage StorageConfig `json:"storage"`
	// LogLevel is one of debug, info, warn or error (default info)
	LogLevel string `json:"log_level"`
	// WriteConcern is the default write concern of writes that do not set one
	WriteConcern storage.WriteConcern `json:"write_concern"`
}

// StorageConfig selects a registered storage provider and its params
type StorageConfig struct {
	// Provider is the name of a registered storage provider, e.g. badger or mongodb
	Provider string `json:"provider" validate:"required"`
	// Params are passed to the provider
	Params map[string]any `json:"params"`
}

// LoadConfig loads a yaml or json config
func LoadConfig(content []byte) (Config, error) {
	var cfg Config
	bits, err := util.YAMLToJSON(content)
	if err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to parse config")
	}
	var values map[string]any
	if err := json.Unmarshal(bits, &values); err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to parse config")
	}
	if err := util.Decode(values, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "failed to decode config")
	}
	if err := util.ValidateStruct(cfg); err != nil {
		return cfg, errors.Wrap(err, errors.Validation, "invalid config")
	}
	return cfg, nil
}
