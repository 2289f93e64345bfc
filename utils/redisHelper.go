package utils

import (
	"os"
	"strconv"
	"time"
)

// GetCacheLifespan returns how long cached user records live in redis.
// CACHE_LIFESPAN is in hours, default 1.
func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}
