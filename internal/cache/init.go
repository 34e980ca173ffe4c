package cache

import (
	"github.com/factuurly/factuurly/internal/logger"
)

// Initialize initializes the cache system
func Initialize(log *logger.Logger) *InMemoryCache {
	log.Info("initializing cache system")
	return NewInMemoryCache()
}
