// Package colourise adds deterministic ANSI colour to log output.
package colourise

import (
	"fmt"
	"hash/crc32"
)

// palette holds the 256-colour codes that remain readable on a dark
// terminal. The dim greys and near-blacks at the bottom of each ramp are
// skipped.
var palette = buildPalette()

func buildPalette() []uint8 {
	var p []uint8
	// bright versions of the base colours
	for c := 9; c <= 14; c++ {
		p = append(p, uint8(c))
	}
	// the 6x6x6 colour cube, minus the darkest slices
	for c := 21; c <= 231; c++ {
		if (c-16)%36 < 6 && c > 57 && c < 160 {
			// first column of the cube is too dark in the mid ranges
			continue
		}
		p = append(p, uint8(c))
	}
	return p
}

// ApplyColour wraps value in ANSI escape codes choosing a colour from a hash
// of the value itself, so the same string renders the same colour on every
// run. The returned string ends with the colour reset sequence.
func ApplyColour(value string) string {
	i := crc32.Checksum([]byte(value), crc32.IEEETable) % uint32(len(palette))
	return fmt.Sprintf("\033[1;38;5;%dm%s\033[0m", palette[i], value)
}

// ErrorHighlight renders s as white text on a red background.
func ErrorHighlight(s string) string {
	return fmt.Sprintf("\033[1;37;41m%s\033[0m", s)
}
