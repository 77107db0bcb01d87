// internal/hub/identity.go
package hub

import "fmt"

// Identity returns the display label for a vehicle joining a network that
// currently holds size members. The first len(reserved) positions take the
// reserved labels in order; later positions get "<prefix> <size+1>".
func Identity(size int, reserved []string, prefix string) string {
	if size < 0 {
		size = 0
	}
	if size < len(reserved) {
		return reserved[size]
	}
	return fmt.Sprintf("%s %d", prefix, size+1)
}
