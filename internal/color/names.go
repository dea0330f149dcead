package color

import "github.com/lucasb-eyer/go-colorful"

// Names is the closed set of color names Name can return
var Names = []string{
	"black", "white", "gray", "red", "orange", "yellow",
	"green", "cyan", "blue", "purple", "pink",
}

func toColorful(r, g, b uint8) colorful.Color {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// Hex formats an RGB triple as lowercase #rrggbb
func Hex(r, g, b uint8) string {
	return toColorful(r, g, b).Hex()
}

// Name maps an RGB color onto a coarse human name using its HSV position
func Name(r, g, b uint8) string {
	h, s, v := toColorful(r, g, b).Hsv()

	if v < 0.2 {
		return "black"
	}
	if s < 0.1 {
		if v > 0.8 {
			return "white"
		}
		return "gray"
	}

	switch {
	case h < 15 || h >= 345:
		return "red"
	case h < 45:
		return "orange"
	case h < 75:
		return "yellow"
	case h < 165:
		return "green"
	case h < 195:
		return "cyan"
	case h < 255:
		return "blue"
	case h < 285:
		return "purple"
	default:
		return "pink"
	}
}
