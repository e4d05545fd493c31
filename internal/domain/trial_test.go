package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseTrialName(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantSensor string
		wantStart  time.Time
		wantMillis int64
		wantErr    bool
	}{
		{
			name:       "without millis suffix",
			input:      "trial_acc_2024-6-20_16-24-44",
			wantSensor: "acc",
			wantStart:  time.Date(2024, 6, 20, 16, 24, 44, 0, time.Local),
		},
		{
			name:       "with millis suffix",
			input:      "trial_gyro_2024-12-1_9-5-7-1733040307123",
			wantSensor: "gyro",
			wantStart:  time.Date(2024, 12, 1, 9, 5, 7, 0, time.Local),
			wantMillis: 1733040307123,
		},
		{name: "wrong prefix", input: "hr_acc_2024-6-20_16-24-44", wantErr: true},
		{name: "missing sensor", input: "trial__2024-6-20_16-24-44", wantErr: true},
		{name: "short date", input: "trial_acc_2024-6_16-24-44", wantErr: true},
		{name: "non numeric time", input: "trial_acc_2024-6-20_16-xx-44", wantErr: true},
		{name: "too many parts", input: "trial_acc_extra_2024-6-20_16-24-44", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTrialName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTrialName) {
					t.Fatalf("ParseTrialName() error = %v, want ErrInvalidTrialName", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTrialName() error = %v", err)
			}
			if got.Sensor != tt.wantSensor {
				t.Errorf("Sensor = %v, want %v", got.Sensor, tt.wantSensor)
			}
			if !got.Started.Equal(tt.wantStart) {
				t.Errorf("Started = %v, want %v", got.Started, tt.wantStart)
			}
			if got.UnixMillis != tt.wantMillis {
				t.Errorf("UnixMillis = %v, want %v", got.UnixMillis, tt.wantMillis)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %v, want %v", got.String(), tt.input)
			}
		})
	}
}

func TestNewTrialName_RoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 890_000_000, time.Local)
	n := NewTrialName(SensorAccelerometer, now)

	parsed, err := ParseTrialName(n.String())
	if err != nil {
		t.Fatalf("ParseTrialName(%q) error = %v", n.String(), err)
	}
	if parsed.InitialMillis() != now.UnixMilli() {
		t.Errorf("InitialMillis() = %v, want %v", parsed.InitialMillis(), now.UnixMilli())
	}
	if parsed.Sensor != SensorAccelerometer {
		t.Errorf("Sensor = %v, want %v", parsed.Sensor, SensorAccelerometer)
	}
}

func TestTrialName_InitialMillisFallsBackToDate(t *testing.T) {
	n, err := ParseTrialName("trial_acc_2024-6-20_16-24-44")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 6, 20, 16, 24, 44, 0, time.Local).UnixMilli()
	if n.InitialMillis() != want {
		t.Errorf("InitialMillis() = %v, want %v", n.InitialMillis(), want)
	}
}

func TestBatchCount(t *testing.T) {
	tests := []struct {
		size int64
		want int
	}{
		{0, 0},
		{-1, 0},
		{BytesPerRecord - 1, 0},
		{BytesPerRecord, 1},
		{3 * BytesPerRecord, 3},
		{3*BytesPerRecord + 17, 3},
	}
	for _, tt := range tests {
		if got := BatchCount(tt.size); got != tt.want {
			t.Errorf("BatchCount(%d) = %d, want %d", tt.size, got, tt.want)
		}
	}
}

func TestBatchTimestamp(t *testing.T) {
	if BatchPeriod != time.Second {
		t.Fatalf("BatchPeriod = %v, want 1s", BatchPeriod)
	}
	if got := BatchTimestamp(1718893484000, 0); got != 1718893484000 {
		t.Errorf("BatchTimestamp(index 0) = %d", got)
	}
	if got := BatchTimestamp(1718893484000, 2); got != 1718893486000 {
		t.Errorf("BatchTimestamp(index 2) = %d, want 1718893486000", got)
	}
}

func TestIsTrial(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		want   bool
	}{
		{"trial_acc_2024-6-20_16-24-44", "", true},
		{"trial_acc_2024-6-20_16-24-44", "trial_acc", true},
		{"trial_gyro_2024-6-20_16-24-44", "trial_acc", false},
		{"notes.txt", "", false},
	}
	for _, tt := range tests {
		if got := IsTrial(tt.name, tt.prefix); got != tt.want {
			t.Errorf("IsTrial(%q, %q) = %v, want %v", tt.name, tt.prefix, got, tt.want)
		}
	}
}

func TestScaleSample(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{0, 0},
		{1.5, 150},
		{-1.5, -150},
		{9.81, 981},
		{1000, math.MaxInt16},
		{-1000, math.MinInt16},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := ScaleSample(tt.in); got != tt.want {
			t.Errorf("ScaleSample(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	e, err := ParseEndpoint("192.168.1.185:12345")
	if err != nil {
		t.Fatalf("ParseEndpoint() error = %v", err)
	}
	if e.Host != "192.168.1.185" || e.Port != 12345 {
		t.Errorf("ParseEndpoint() = %+v", e)
	}
	if e.BaseURL() != "http://192.168.1.185:12345" {
		t.Errorf("BaseURL() = %v", e.BaseURL())
	}

	zero, err := ParseEndpoint("")
	if err != nil || !zero.IsZero() || zero.String() != "" {
		t.Errorf("ParseEndpoint(\"\") = %+v, %v", zero, err)
	}

	for _, bad := range []string{"no-port", "host:0", "host:abc"} {
		if _, err := ParseEndpoint(bad); err == nil {
			t.Errorf("ParseEndpoint(%q) expected error", bad)
		}
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	readings := make([]Reading, SamplesPerBatch)
	for i := range readings {
		readings[i] = Reading{X: float32(i) / 10, Y: -float32(i) / 100, Z: 9.81}
	}
	rec := AppendRecord(nil, readings)
	if len(rec) != BytesPerRecord {
		t.Fatalf("record length = %d, want %d", len(rec), BytesPerRecord)
	}

	var b Batch
	b.SetRecord(rec)
	for i := range readings {
		if want := ScaleSample(readings[i].X); b.X[i] != want {
			t.Errorf("X[%d] = %d, want %d", i, b.X[i], want)
		}
		if want := ScaleSample(readings[i].Y); b.Y[i] != want {
			t.Errorf("Y[%d] = %d, want %d", i, b.Y[i], want)
		}
	}
	if b.Z[0] != 981 {
		t.Errorf("Z[0] = %d, want 981", b.Z[0])
	}
}
