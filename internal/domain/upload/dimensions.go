package upload

import "math"

// fitDimensions caps raw pixel dimensions to a square maxDim envelope,
// preserving aspect ratio. Values already inside the envelope pass
// through unchanged, so applying it twice is a no-op. Rounding is to the
// nearest integer and never produces zero.
func fitDimensions(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}

	longest := width
	if height > longest {
		longest = height
	}
	scale := float64(maxDim) / float64(longest)

	scaled := func(v int) int {
		n := int(math.Round(float64(v) * scale))
		if n < 1 {
			n = 1
		}
		return n
	}
	return scaled(width), scaled(height)
}
