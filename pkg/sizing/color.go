package sizing

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Eleven evenly spaced stops of the viridis colormap.
var viridisHex = []string{
	"#440154", "#482475", "#414487", "#355f8d", "#2a788e", "#21918c",
	"#22a884", "#44bf70", "#7ad151", "#bddf26", "#fde725",
}

var viridisStops = mustParseStops(viridisHex)

func mustParseStops(hex []string) []colorful.Color {
	stops := make([]colorful.Color, len(hex))
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		stops[i] = c
	}
	return stops
}

// Viridis returns the viridis color at t in [0, 1] as "#rrggbb".
// Fresh terms (t near 0) are dark purple, stale ones yellow.
func Viridis(t float64) string {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	pos := t * float64(len(viridisStops)-1)
	i := int(math.Floor(pos))
	if i >= len(viridisStops)-1 {
		return viridisStops[len(viridisStops)-1].Hex()
	}
	return viridisStops[i].BlendRgb(viridisStops[i+1], pos-float64(i)).Clamped().Hex()
}
