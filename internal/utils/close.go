package utils

import (
	"io"

	"github.com/MrSnakeDoc/serpwatch/internal/logger"
)

// Close closes c and logs a failure under name. It reports whether the close
// was clean. A nil closer is a no-op.
func Close(c io.Closer, name string, log logger.Logger) bool {
	if c == nil {
		return true
	}
	if err := c.Close(); err != nil {
		log.Warn("failed to close "+name, logger.Error(err))
		return false
	}
	return true
}
