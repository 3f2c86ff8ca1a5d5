package chart

// Color is a fill/stroke pair from the Tailwind palette: the 200 shade for
// backgrounds, the 400 shade for borders.
type Color struct {
	Background string
	Border     string
}

var (
	Red     = Color{Background: "#fecaca", Border: "#f87171"}
	Sky     = Color{Background: "#bae6fd", Border: "#38bdf8"}
	Amber   = Color{Background: "#fde68a", Border: "#fbbf24"}
	Blue    = Color{Background: "#bfdbfe", Border: "#60a5fa"}
	Cyan    = Color{Background: "#a5f3fc", Border: "#22d3ee"}
	Emerald = Color{Background: "#a7f3d0", Border: "#34d399"}
	Fuchsia = Color{Background: "#f5d0fe", Border: "#e879f9"}
	Green   = Color{Background: "#bbf7d0", Border: "#4ade80"}
	Indigo  = Color{Background: "#c7d2fe", Border: "#818cf8"}
	Lime    = Color{Background: "#d9f99d", Border: "#a3e635"}
	Orange  = Color{Background: "#fed7aa", Border: "#fb923c"}
	Pink    = Color{Background: "#fbcfe8", Border: "#f472b6"}
	Rose    = Color{Background: "#fecdd3", Border: "#fb7185"}
	Teal    = Color{Background: "#99f6e4", Border: "#2dd4bf"}
	Yellow  = Color{Background: "#fef08a", Border: "#facc15"}
	Zinc    = Color{Background: "#e4e4e7", Border: "#a1a1aa"}
)

// Palette is the fixed, ordered colour cycle for per-committer slices.
// The order must not change: committers keep their colour across refetches
// only while both the palette and the committer order are stable.
var Palette = [...]Color{
	Red, Sky, Amber, Blue, Cyan, Emerald, Fuchsia, Green,
	Indigo, Lime, Orange, Pink, Rose, Teal, Yellow, Zinc,
}

// ColorAt returns the palette colour for the i-th series.
func ColorAt(i int) Color {
	if i < 0 {
		i = -i
	}
	return Palette[i%len(Palette)]
}
