// Package channel answers whether the running build was distributed
// through the restricted beta channel. The probe is a boolean predicate
// injected into the trial manager; the manager ORs its answer with the
// configured simulation override.
package channel

import (
	"context"
	"os"
	"strings"
)

// Probe reports whether the binary is running under the restricted
// distribution channel.
type Probe func(ctx context.Context) bool

// Static returns a probe with a fixed answer. Used in tests and for
// deployments where channel membership is decided at rollout time.
func Static(member bool) Probe {
	return func(context.Context) bool { return member }
}

// FromEnv returns a probe that reads an environment variable on every
// call. The values "1", "true", "yes" and "on" (case-insensitive) count
// as membership.
func FromEnv(name string) Probe {
	return func(context.Context) bool {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	}
}

// MarkerFile returns a probe that reports membership while the given file
// exists. Beta installers drop the marker; release installers do not.
func MarkerFile(path string) Probe {
	return func(context.Context) bool {
		if path == "" {
			return false
		}
		_, err := os.Stat(path)
		return err == nil
	}
}
