package env

import (
	"os"

	"github.com/joho/godotenv"
)

// Load reads the given .env files in order. Variables already present in the
// process environment keep their values, and missing files are skipped.
func Load(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}
