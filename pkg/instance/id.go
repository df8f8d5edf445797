// Package instance identifies the running node for status reporting.
package instance

import (
	"github.com/denisbrodbeck/machineid"
)

// ID returns a stable, app-scoped identifier for this host. The raw
// machine id never leaves the process.
func ID() (string, error) {
	return machineid.ProtectedID("trade-analysis")
}
