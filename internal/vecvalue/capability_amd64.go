//go:build amd64

package vecvalue

import "golang.org/x/sys/cpu"

// Capability reports the CPU features detected on this machine. It is
// informational only — vec_debug() surfaces it to the caller — every
// distance kernel runs the same portable Go loop regardless of what it
// reports, since there's no assembly backing an accelerated path here.
func Capability() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "go (AVX-512F detected, unused: no assembly kernel)"
	case cpu.X86.HasAVX2 && cpu.X86.HasFMA:
		return "go (AVX2+FMA detected, unused: no assembly kernel)"
	case cpu.X86.HasSSE42:
		return "go (SSE4.2 detected, unused: no assembly kernel)"
	default:
		return "go (amd64, scalar)"
	}
}
