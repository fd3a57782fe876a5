package engine

import (
	"image"
	"math"

	"streamvision/pkg/models"
)

// ComputeVisualSummary derives brightness, contrast, saturation and
// k=3 dominant colors from a decoded frame, grid-sampling pixels for
// speed rather than walking every one. It never returns
// an error: any failure degrades to the sentinel gray summary.
func ComputeVisualSummary(img image.Image) models.VisualSummary {
	if img == nil {
		return models.SentinelVisualSummary()
	}

	samples := sampleGrid(img, 8)
	if len(samples) == 0 {
		return models.SentinelVisualSummary()
	}

	brightness := meanBrightness(samples)
	contrast := stddevGray(samples, brightness)
	saturation := meanSaturation(samples)
	colors := kMeansDominant(samples, 3)

	return models.VisualSummary{
		DominantColors: colors,
		Brightness:     clamp01(brightness),
		Contrast:       clamp01(contrast),
		Saturation:     clamp01(saturation),
	}
}

type rgb struct{ r, g, b float64 } // channels in [0,1]

func sampleGrid(img image.Image, step int) []rgb {
	b := img.Bounds()
	var out []rgb
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, rgb{
				r: float64(r) / 65535,
				g: float64(g) / 65535,
				b: float64(bl) / 65535,
			})
		}
	}
	return out
}

func grayOf(p rgb) float64 {
	return 0.299*p.r + 0.587*p.g + 0.114*p.b
}

func meanBrightness(samples []rgb) float64 {
	var sum float64
	for _, p := range samples {
		sum += grayOf(p)
	}
	return sum / float64(len(samples))
}

func stddevGray(samples []rgb, mean float64) float64 {
	var sumSq float64
	for _, p := range samples {
		d := grayOf(p) - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(samples))
	// A stddev of 0.5 on a [0,1] grayscale channel is already extreme
	// contrast; scale so typical frames land well inside [0,1].
	return math.Sqrt(variance) * 2
}

func meanSaturation(samples []rgb) float64 {
	var sum float64
	for _, p := range samples {
		sum += saturationOf(p)
	}
	return sum / float64(len(samples))
}

func saturationOf(p rgb) float64 {
	max := math.Max(p.r, math.Max(p.g, p.b))
	min := math.Min(p.r, math.Min(p.g, p.b))
	if max == 0 {
		return 0
	}
	return (max - min) / max
}

// kMeansDominant runs a fixed-iteration k-means over the sampled colors
// and returns the k cluster centroids as integer RGB triples, ordered by
// cluster population descending.
func kMeansDominant(samples []rgb, k int) [][3]int {
	if len(samples) < k {
		k = len(samples)
	}
	if k == 0 {
		return [][3]int{{128, 128, 128}}
	}

	centroids := make([]rgb, k)
	stride := len(samples) / k
	for i := range centroids {
		centroids[i] = samples[i*stride]
	}

	assignments := make([]int, len(samples))
	const iterations = 8
	for iter := 0; iter < iterations; iter++ {
		for i, p := range samples {
			assignments[i] = nearestCentroid(p, centroids)
		}
		sums := make([]rgb, k)
		counts := make([]int, k)
		for i, p := range samples {
			c := assignments[i]
			sums[c].r += p.r
			sums[c].g += p.g
			sums[c].b += p.b
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			centroids[c] = rgb{
				r: sums[c].r / float64(counts[c]),
				g: sums[c].g / float64(counts[c]),
				b: sums[c].b / float64(counts[c]),
			}
		}
	}

	counts := make([]int, k)
	for _, c := range assignments {
		counts[c]++
	}

	type ranked struct {
		color [3]int
		count int
	}
	ranked_ := make([]ranked, k)
	for i, c := range centroids {
		ranked_[i] = ranked{
			color: [3]int{int(c.r * 255), int(c.g * 255), int(c.b * 255)},
			count: counts[i],
		}
	}
	for i := 1; i < len(ranked_); i++ {
		for j := i; j > 0 && ranked_[j].count > ranked_[j-1].count; j-- {
			ranked_[j], ranked_[j-1] = ranked_[j-1], ranked_[j]
		}
	}

	out := make([][3]int, len(ranked_))
	for i, r := range ranked_ {
		out[i] = r.color
	}
	return out
}

func nearestCentroid(p rgb, centroids []rgb) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		dr, dg, db := p.r-c.r, p.g-c.g, p.b-c.b
		dist := dr*dr + dg*dg + db*db
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
