//go:build !amd64 && !arm64

package vecvalue

// Capability reports the CPU features detected on this machine. This
// platform has no feature-detection library wired in, so it always
// reports the scalar fallback.
func Capability() string {
	return "go (scalar)"
}
