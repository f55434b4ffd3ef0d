package cache

import (
	"fmt"
)

// EnvironmentsPrefix is shared by every cached environment listing.
const EnvironmentsPrefix = "envs:"

// EnvironmentsKey caches the environment listing for one chain filter.
func EnvironmentsKey(chainID *int64) string {
	if chainID == nil {
		return EnvironmentsPrefix + "all"
	}
	return fmt.Sprintf("%schain:%d", EnvironmentsPrefix, *chainID)
}

// RateLimitKey is the counter for one client in one fixed window.
func RateLimitKey(client string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%d", client, window)
}
