package domain

import "math"

// SampleScale converts float sensor readings into the int16 wire representation.
const SampleScale = 100

// Batch is one fixed-size chunk of tri-axial samples read from a trial file.
type Batch struct {
	// Index is the zero-based position of this batch within its file.
	Index uint16

	// Count is the total number of batches in the file.
	Count uint16

	// X, Y and Z hold the scaled samples of each axis.
	X [SamplesPerBatch]int16
	Y [SamplesPerBatch]int16
	Z [SamplesPerBatch]int16

	// Timestamp is the unix millisecond time of the first sample.
	Timestamp int64

	// Filename names the trial file the batch was read from.
	Filename string
}

// ScaleSample converts a reading to its wire value, truncating toward zero
// and saturating at the int16 range.
func ScaleSample(v float32) int16 {
	f := float64(v) * SampleScale
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt16:
		return math.MaxInt16
	case f <= math.MinInt16:
		return math.MinInt16
	}
	return int16(f)
}

// Reading is one tri-axial sample produced by a sensor.
type Reading struct {
	X, Y, Z float32
}
