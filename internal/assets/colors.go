package assets

import (
	"strconv"
	"strings"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// parseColor reads "#rrggbb" or "#rrggbbaa".
func parseColor(s string) (rl.Color, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 && len(s) != 8 {
		return rl.Color{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rl.Color{}, false
	}
	if len(s) == 6 {
		v = v<<8 | 0xff
	}
	return rl.NewColor(uint8(v>>24), uint8(v>>16), uint8(v>>8), uint8(v)), true
}

func colorOr(s string, fallback rl.Color) rl.Color {
	if c, ok := parseColor(s); ok {
		return c
	}
	return fallback
}
