package ui

import (
	"strings"
)

// Sparkline renders a series of samples as a row of Unicode block
// characters. The indexing TUI feeds it documents-per-second samples; the
// stats command feeds it latency bucket counts.
type Sparkline struct {
	samples []float64 // ring buffer
	width   int       // display width, one bar per sample
	head    int       // next write position
	count   int       // samples added so far
	max     float64   // scaling ceiling
}

// SparklineChars are the eight block heights, lowest to tallest.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// NewSparkline creates a sparkline holding width samples. A non-positive
// width falls back to 60, one minute of once-per-second samples.
func NewSparkline(width int) *Sparkline {
	if width <= 0 {
		width = 60
	}
	return &Sparkline{
		samples: make([]float64, width),
		width:   width,
	}
}

// Add appends a sample, evicting the oldest once the buffer is full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % s.width
	s.count++

	if value > s.max {
		s.max = value
	}
	// The evicted sample may have been the maximum, so rescan once per lap.
	if s.count%s.width == 0 {
		s.recalculateMax()
	}
}

func (s *Sparkline) recalculateMax() {
	s.max = 0
	for _, v := range s.samples {
		if v > s.max {
			s.max = v
		}
	}
	if s.max < 1 {
		s.max = 1
	}
}

// charFor scales value against the current maximum and picks a bar height.
func (s *Sparkline) charFor(value float64) rune {
	if s.max <= 0 {
		return SparklineChars[0]
	}
	idx := int(value / s.max * float64(len(SparklineChars)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(SparklineChars) {
		idx = len(SparklineChars) - 1
	}
	return SparklineChars[idx]
}

// Render returns the full-width sparkline, oldest sample first. Positions
// not yet filled render as spaces.
func (s *Sparkline) Render() string {
	return s.render(s.width, 0)
}

// RenderWithWidth renders only the most recent width samples, for when the
// terminal is narrower than the buffer.
func (s *Sparkline) RenderWithWidth(width int) string {
	if width <= 0 || width >= s.width {
		return s.Render()
	}
	skip := 0
	if n := min(s.count, s.width); n > width {
		skip = n - width
	}
	return s.render(width, skip)
}

// render walks the ring buffer oldest-first, skipping the first skip
// samples and emitting up to width bars.
func (s *Sparkline) render(width, skip int) string {
	if s.count == 0 {
		return strings.Repeat(string(SparklineChars[0]), width)
	}

	if s.max <= 0 {
		s.recalculateMax()
	}

	start := 0
	if s.count >= s.width {
		start = s.head
	}
	filled := min(s.count, s.width)

	var sb strings.Builder
	sb.Grow(width * 3) // block characters are 3 bytes in UTF-8

	emitted := 0
	for i := 0; i < s.width && emitted < width; i++ {
		if i < skip {
			continue
		}
		idx := (start + i) % s.width
		if i >= filled && s.count < s.width {
			sb.WriteRune(' ')
		} else {
			sb.WriteRune(s.charFor(s.samples[idx]))
		}
		emitted++
	}
	for emitted < width {
		sb.WriteRune(' ')
		emitted++
	}

	return sb.String()
}

// Clear resets the sparkline to empty.
func (s *Sparkline) Clear() {
	for i := range s.samples {
		s.samples[i] = 0
	}
	s.head = 0
	s.count = 0
	s.max = 0
}

// Count returns the number of samples added.
func (s *Sparkline) Count() int {
	return s.count
}

// Max returns the current scaling ceiling.
func (s *Sparkline) Max() float64 {
	return s.max
}
