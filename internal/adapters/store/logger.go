package store

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// zerologWriter hands gorm's log lines to the process logger.
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...any) {
	log.Warn().Str("module", "store").Msgf(strings.TrimSpace(format), args...)
}

// newLogger reports slow queries and errors. A missing row is a normal
// lookup result (first JOIN of a user) and is not logged.
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
