package envutil

import "strings"

// IsDevelopment reports whether env names a development deployment, where
// cookies are issued without the Secure attribute so plain-HTTP localhost works.
func IsDevelopment(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "development" || env == "dev"
}
