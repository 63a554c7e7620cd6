package env

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const DefaultEnvFile = ".env"

// InitConfig loads .env files into the process environment and fills config
// from it. Without files, DefaultEnvFile is loaded if it exists. Files named
// explicitly must exist. Variables already set in the environment win.
func InitConfig(config any, files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "failed to load %s", DefaultEnvFile)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return errors.Wrap(err, "failed to load env files")
	}

	if err := envconfig.Process("", config); err != nil {
		return errors.Wrap(err, "failed to envconfig.Process")
	}

	return nil
}
