package shipping

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for reading rate files from the local file
// system.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based rate table loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "shipping-loader").Logger(),
	}
}

// Load reads a JSON rate file and returns a Table.
func (l *fileLoader) Load(ctx context.Context, source string) (Table, error) {
	l.logger.Info().Str("file", source).Msg("loading shipping rate file")

	data, err := os.ReadFile(source)
	if err != nil {
		l.logger.Error().Err(err).Str("file", source).Msg("failed to read shipping rate file")
		return nil, fmt.Errorf("failed to read shipping rate file %s: %w", source, err)
	}

	table, err := parseTable(data)
	if err != nil {
		l.logger.Error().Err(err).Str("file", source).Msg("failed to parse shipping rate file")
		return nil, fmt.Errorf("failed to parse shipping rate file %s: %w", source, err)
	}

	l.logger.Info().
		Str("file", source).
		Int("methods_loaded", len(table.Methods())).
		Msg("shipping rate file loaded successfully")

	return table, nil
}

// fallbackLoader tries S3 first, then the local file system, then the
// built-in default table.
type fallbackLoader struct {
	s3Loader   Loader
	fileLoader Loader
	s3Key      string
	s3Enabled  bool
	currency   string
	logger     zerolog.Logger
}

// NewFallbackLoader creates a loader that tries S3 first, then the local file
// system, then the built-in defaults. If s3Loader is nil, only the file
// loader and defaults are used.
func NewFallbackLoader(s3Loader, fileLoader Loader, s3Key string, s3Enabled bool, currency string, logger zerolog.Logger) Loader {
	return &fallbackLoader{
		s3Loader:   s3Loader,
		fileLoader: fileLoader,
		s3Key:      s3Key,
		s3Enabled:  s3Enabled,
		currency:   currency,
		logger:     logger.With().Str("component", "shipping-fallback-loader").Logger(),
	}
}

// Load attempts S3 first when enabled, then the local file, then the default
// table. The default never fails, so checkout can always price shipping.
func (l *fallbackLoader) Load(ctx context.Context, source string) (Table, error) {
	if l.s3Enabled && l.s3Loader != nil {
		table, err := l.s3Loader.Load(ctx, l.s3Key)
		if err == nil {
			l.logger.Info().Str("s3_key", l.s3Key).Msg("shipping rates loaded from S3")
			return table, nil
		}
		l.logger.Warn().
			Err(err).
			Str("s3_key", l.s3Key).
			Msg("failed to load shipping rates from S3, falling back to local file")
	}

	table, err := l.fileLoader.Load(ctx, source)
	if err == nil {
		return table, nil
	}

	l.logger.Warn().
		Err(err).
		Str("file", source).
		Msg("failed to load shipping rate file, using built-in defaults")

	return DefaultTable(l.currency), nil
}
