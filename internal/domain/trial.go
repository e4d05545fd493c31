package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sampling layout shared by the device and everything that reads its files.
const (
	// SampleFrequency is the sensor sampling rate in Hz.
	SampleFrequency = 100

	// SamplesPerBatch is the number of samples per axis in one batch.
	SamplesPerBatch = 100

	// BytesPerSample is the on-disk size of one float32 sample.
	BytesPerSample = 4

	// AxisCount is the number of axes recorded per sensor (x, y, z).
	AxisCount = 3

	// BytesPerAxis is the on-disk size of one axis array within a record.
	BytesPerAxis = SamplesPerBatch * BytesPerSample

	// BytesPerRecord is the on-disk size of one batch (x, y and z arrays).
	BytesPerRecord = AxisCount * BytesPerAxis

	// BatchPeriod is the time covered by one batch.
	BatchPeriod = (1000 / SampleFrequency) * SamplesPerBatch * time.Millisecond

	// MaxBatchCount is the largest batch count the wire format can carry.
	MaxBatchCount = math.MaxUint16
)

// TrialPrefix starts every trial file name.
const TrialPrefix = "trial"

// DeleteAll is the delete target that selects every trial file.
const DeleteAll = "all"

// Sensor group prefixes used in trial names.
const (
	SensorAccelerometer = "acc"
	SensorGyroscope     = "gyro"
)

// TrialName is the parsed form of
// trial_<sensor>_<year>-<month>-<day>_<hour>-<minute>-<second>[-<unixMillis>].
type TrialName struct {
	Sensor  string
	Started time.Time

	// UnixMillis is the exact start time carried by the name suffix.
	// Zero when the name has no suffix.
	UnixMillis int64
}

// NewTrialName builds the name for a trial of the given sensor started at t.
func NewTrialName(sensor string, t time.Time) TrialName {
	return TrialName{
		Sensor:     sensor,
		Started:    t.Truncate(time.Second),
		UnixMillis: t.UnixMilli(),
	}
}

// String renders the file name.
func (n TrialName) String() string {
	t := n.Started
	name := fmt.Sprintf("%s_%s_%d-%d-%d_%d-%d-%d", TrialPrefix, n.Sensor,
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	if n.UnixMillis != 0 {
		name += "-" + strconv.FormatInt(n.UnixMillis, 10)
	}
	return name
}

// InitialMillis returns the unix millisecond timestamp of the first sample.
func (n TrialName) InitialMillis() int64 {
	if n.UnixMillis != 0 {
		return n.UnixMillis
	}
	return n.Started.UnixMilli()
}

// ParseTrialName parses a trial file name. Date fields are read in local time.
func ParseTrialName(name string) (TrialName, error) {
	parts := strings.Split(name, "_")
	if len(parts) != 4 || parts[0] != TrialPrefix || parts[1] == "" {
		return TrialName{}, fmt.Errorf("%w: %q", ErrInvalidTrialName, name)
	}

	date, err := splitInts(parts[2], 3, 3)
	if err != nil {
		return TrialName{}, fmt.Errorf("%w: %q: date: %v", ErrInvalidTrialName, name, err)
	}
	clock, err := splitInts(parts[3], 3, 4)
	if err != nil {
		return TrialName{}, fmt.Errorf("%w: %q: time: %v", ErrInvalidTrialName, name, err)
	}

	n := TrialName{
		Sensor: parts[1],
		Started: time.Date(int(date[0]), time.Month(date[1]), int(date[2]),
			int(clock[0]), int(clock[1]), int(clock[2]), 0, time.Local),
	}
	if len(clock) == 4 {
		n.UnixMillis = clock[3]
	}
	return n, nil
}

func splitInts(s string, min, max int) ([]int64, error) {
	fields := strings.Split(s, "-")
	if len(fields) < min || len(fields) > max {
		return nil, fmt.Errorf("want %d to %d fields, got %d", min, max, len(fields))
	}
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// IsTrial reports whether name is eligible for bulk transfer under prefix.
func IsTrial(name, prefix string) bool {
	if prefix == "" {
		prefix = TrialPrefix
	}
	return strings.HasPrefix(name, prefix)
}

// BatchCount returns the number of complete batches in a file of the given size.
// A trailing partial record is ignored.
func BatchCount(size int64) int {
	if size <= 0 {
		return 0
	}
	return int(size / BytesPerRecord)
}

// BatchTimestamp returns the unix millisecond timestamp of the batch at index.
func BatchTimestamp(initialMillis int64, index int) int64 {
	return initialMillis + int64(index)*BatchPeriod.Milliseconds()
}
