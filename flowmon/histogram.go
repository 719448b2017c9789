package flowmon

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MaxBins bounds the bins of a Histogram. Samples past the last bin are
// counted in it, so it holds everything from BinStart(MaxBins-1) upward.
const MaxBins = 1 << 16

// Histogram counts samples in fixed-width bins starting at zero.
type Histogram struct {
	BinWidth float64
	Counts   []uint64

	// Overflow counts the samples clamped into the last bin.
	Overflow uint64
}

// NewHistogram creates an empty histogram.
func NewHistogram(binWidth float64) *Histogram {
	if binWidth <= 0 {
		panic("histogram bin width must be positive")
	}

	return &Histogram{BinWidth: binWidth}
}

// AddValue counts a sample. Negative samples go to the first bin.
func (h *Histogram) AddValue(v float64) {
	idx := 0
	if v > 0 {
		f := math.Floor(v / h.BinWidth)
		if f >= MaxBins {
			idx = MaxBins - 1
			h.Overflow++
		} else {
			idx = int(f)
		}
	}

	for len(h.Counts) <= idx {
		h.Counts = append(h.Counts, 0)
	}

	h.Counts[idx]++
}

// NBins returns the number of bins in use.
func (h *Histogram) NBins() int {
	return len(h.Counts)
}

// Total returns the number of samples.
func (h *Histogram) Total() uint64 {
	var n uint64
	for _, c := range h.Counts {
		n += c
	}

	return n
}

// BinStart returns the lower edge of bin i.
func (h *Histogram) BinStart(i int) float64 {
	return float64(i) * h.BinWidth
}

// BinCenter returns the middle of bin i.
func (h *Histogram) BinCenter(i int) float64 {
	return h.BinStart(i) + h.BinWidth/2
}

func (h *Histogram) weighted() (xs, ws []float64) {
	for i, c := range h.Counts {
		if c == 0 {
			continue
		}

		xs = append(xs, h.BinCenter(i))
		ws = append(ws, float64(c))
	}

	return xs, ws
}

// Quantile returns the p-quantile of the bin centers.
func (h *Histogram) Quantile(p float64) Mean {
	xs, ws := h.weighted()
	if len(xs) == 0 {
		return Undefined
	}

	return Mean{
		Value:   stat.Quantile(p, stat.Empirical, xs, ws),
		Defined: true,
	}
}

// StdDev returns the weighted standard deviation of the bin centers.
func (h *Histogram) StdDev() Mean {
	xs, ws := h.weighted()
	if h.Total() < 2 {
		return Undefined
	}

	_, std := stat.MeanStdDev(xs, ws)

	return Mean{Value: std, Defined: true}
}

// Clone returns a deep copy.
func (h *Histogram) Clone() *Histogram {
	if h == nil {
		return nil
	}

	return &Histogram{
		BinWidth: h.BinWidth,
		Counts:   append([]uint64(nil), h.Counts...),
		Overflow: h.Overflow,
	}
}
