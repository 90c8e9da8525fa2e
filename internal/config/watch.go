package config

import (
	"context"
	"crypto/sha256"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Watch polls the config file on the given interval and invokes onChange with
// the freshly parsed Config whenever the file's content (not its mtime)
// changes. The first successful read also fires onChange. Watch blocks until
// the context is canceled; read or parse failures are logged and the previous
// configuration stays in effect.
func Watch(ctx context.Context, path string, interval time.Duration, log zerolog.Logger, onChange func(*Config)) {
	var lastSum [sha256.Size]byte

	check := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config read failed, keeping previous")
			return
		}
		sum := sha256.Sum256(data)
		if sum == lastSum {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config parse failed, keeping previous")
			return
		}
		lastSum = sum
		log.Info().Str("path", path).Msg("config changed, reloading")
		onChange(cfg)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
