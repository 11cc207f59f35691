package cache

import "fmt"

func KeyStatusKey(remoteUser string) string {
	return fmt.Sprintf("keystatus:%s", remoteUser)
}

func RateLimitKey(remoteUser string) string {
	return fmt.Sprintf("ratelimit:%s", remoteUser)
}

// KeyStatusGenKey holds a counter bumped on every change to the user's loaders.
func KeyStatusGenKey(remoteUser string) string {
	return fmt.Sprintf("keystatus-gen:%s", remoteUser)
}
