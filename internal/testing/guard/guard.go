// Package guard switches the process into test mode when imported for side
// effects, so bootstrapping code skips network dependencies.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "DEALERQUOTE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
