package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LogLevelEnv names the environment variable that sets the log level when
// no flag is given.
const LogLevelEnv = "LOG_LEVEL"

// LoadDotEnv loads KEY=value files into the process environment. Missing
// files are skipped and variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ResolveLogLevel picks the log level from the flag value, then the
// LOG_LEVEL environment variable, then the settings file.
func ResolveLogLevel(flagValue string, s *Settings) (slog.Level, error) {
	switch {
	case flagValue != "":
		return ParseLogLevel(flagValue)
	case os.Getenv(LogLevelEnv) != "":
		return ParseLogLevel(os.Getenv(LogLevelEnv))
	case s != nil:
		return ParseLogLevel(s.LogLevel)
	default:
		return slog.LevelInfo, nil
	}
}
