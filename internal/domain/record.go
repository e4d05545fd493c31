package domain

import (
	"encoding/binary"
	"math"
)

// AppendRecord appends the on-disk form of one batch of readings to dst.
// readings must hold exactly SamplesPerBatch entries.
func AppendRecord(dst []byte, readings []Reading) []byte {
	var axes [AxisCount][BytesPerAxis]byte
	for i, r := range readings[:SamplesPerBatch] {
		off := i * BytesPerSample
		binary.LittleEndian.PutUint32(axes[0][off:], math.Float32bits(r.X))
		binary.LittleEndian.PutUint32(axes[1][off:], math.Float32bits(r.Y))
		binary.LittleEndian.PutUint32(axes[2][off:], math.Float32bits(r.Z))
	}
	for i := range axes {
		dst = append(dst, axes[i][:]...)
	}
	return dst
}

// SetRecord fills the sample arrays of b from one on-disk record of
// BytesPerRecord bytes.
func (b *Batch) SetRecord(p []byte) {
	for i, axis := range [...]*[SamplesPerBatch]int16{&b.X, &b.Y, &b.Z} {
		base := p[i*BytesPerAxis : (i+1)*BytesPerAxis]
		for j := range axis {
			v := math.Float32frombits(binary.LittleEndian.Uint32(base[j*BytesPerSample:]))
			axis[j] = ScaleSample(v)
		}
	}
}
