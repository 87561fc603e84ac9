//go:build arm64

package vecvalue

import "golang.org/x/sys/cpu"

// Capability reports the CPU features detected on this machine. See
// capability_amd64.go: detection is informational only.
func Capability() string {
	if cpu.ARM64.HasASIMD {
		return "go (NEON detected, unused: no assembly kernel)"
	}
	return "go (arm64, scalar)"
}
