package env

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/keboola/metric-duct/internal/pkg/log"
	"github.com/keboola/metric-duct/internal/pkg/utils/errors"
)

// LoadDotEnv loads ENVs from ".env" files, if they exist. Existing ENVs take precedence.
func LoadDotEnv(ctx context.Context, logger log.Logger, osEnvs *Map, fs afero.Fs, dirs []string) *Map {
	envs := FromMap(osEnvs.ToMap())

	for _, dir := range dirs {
		for _, file := range Files() {
			path := filepath.Join(dir, file)
			info, err := fs.Stat(path)
			switch {
			case err != nil && os.IsNotExist(err):
				continue
			case err != nil:
				logger.Warnf(ctx, `cannot check if path "%s" exists: %s`, path, err)
				continue
			case info.IsDir():
				continue
			}

			fileEnvs, err := LoadEnvFile(fs, path)
			if err != nil {
				logger.Warn(ctx, errors.Format(err))
				continue
			}

			logger.Infof(ctx, `loaded env file "%s"`, path)
			envs.Merge(fileEnvs, false)
		}
	}

	return envs
}

func LoadEnvFile(fs afero.Fs, path string) (*Map, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot read env file "%s"`, path)
	}

	data, err := godotenv.UnmarshalBytes(content)
	if err != nil {
		return nil, errors.PrefixErrorf(err, `cannot parse env file "%s"`, path)
	}

	return FromMap(data), nil
}
