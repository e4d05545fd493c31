// Package codec encodes and decodes messages on the peer channel.
//
// Every message starts with a one-byte kind discriminator. Commands carry a
// JSON envelope after the discriminator. Batches are an array of
// little-endian 16-bit words whose first word holds the discriminator in its
// low byte and a reserved alignment byte in its high byte:
//
//	[kind, index, count, z[100], x[100], y[100], timestamp[13], filename...]
//
// Timestamp and filename are carried as one 16-bit code unit per character.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf16"

	"github.com/bft-labs/sensorrelay/internal/domain"
)

// Message kinds.
const (
	KindBatch   byte = 0
	KindCommand byte = 1
)

// TimestampDigits is the fixed width of the batch timestamp field.
const TimestampDigits = 13

const (
	wordSize = 2

	// headerSize covers the discriminator and the alignment byte.
	headerSize = 2

	// fixedPayloadSize is index + count + three axes + timestamp.
	fixedPayloadSize = (2 + domain.AxisCount*domain.SamplesPerBatch + TimestampDigits) * wordSize
)

var (
	ErrEmptyMessage  = errors.New("codec: empty message")
	ErrUnknownKind   = errors.New("codec: unknown message kind")
	ErrShortBatch    = errors.New("codec: short batch")
	ErrOddLength     = errors.New("codec: batch length is not word aligned")
	ErrBadTimestamp  = errors.New("codec: timestamp does not fit 13 digits")
	ErrMissingAction = errors.New("codec: command without action")
)

// DecodeError reports a malformed message. It matches domain.ErrDecode.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "codec: decode: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes DecodeError match domain.ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == domain.ErrDecode }

var nullPayload = json.RawMessage("null")

// Message is a decoded peer channel message. Exactly one of Envelope or
// Batch is meaningful, selected by Kind.
type Message struct {
	Kind     byte
	Envelope domain.Envelope
	Batch    domain.Batch

	// Payload is the batch body with the discriminator and alignment byte
	// stripped. This is the byte sequence forwarded to the host receiver.
	Payload []byte
}

// EncodeCommand encodes a command envelope. A nil Payload goes on the wire
// as JSON null, the same bytes NewEnvelope produces for a nil payload, and
// Decode returns it as json.RawMessage("null").
func EncodeCommand(env domain.Envelope) ([]byte, error) {
	if env.Action == "" {
		return nil, ErrMissingAction
	}
	if len(env.Payload) == 0 {
		env.Payload = nullPayload
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal envelope: %w", err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, KindCommand)
	return append(out, body...), nil
}

// EncodeBatch encodes a data batch.
func EncodeBatch(b domain.Batch) ([]byte, error) {
	ts := strconv.FormatInt(b.Timestamp, 10)
	if b.Timestamp < 0 || len(ts) > TimestampDigits {
		return nil, fmt.Errorf("%w: %d", ErrBadTimestamp, b.Timestamp)
	}
	ts = fmt.Sprintf("%0*d", TimestampDigits, b.Timestamp)
	name := utf16.Encode([]rune(b.Filename))

	out := make([]byte, headerSize+fixedPayloadSize+len(name)*wordSize)
	out[0] = KindBatch
	out[1] = 0

	w := out[headerSize:]
	put := func(v uint16) {
		binary.LittleEndian.PutUint16(w, v)
		w = w[wordSize:]
	}

	put(b.Index)
	put(b.Count)
	for _, axis := range [...]*[domain.SamplesPerBatch]int16{&b.Z, &b.X, &b.Y} {
		for _, s := range axis {
			put(uint16(s))
		}
	}
	for i := 0; i < TimestampDigits; i++ {
		put(uint16(ts[i]))
	}
	for _, u := range name {
		put(u)
	}
	return out, nil
}

// Decode decodes one message. Malformed commands yield a *DecodeError.
func Decode(msg []byte) (Message, error) {
	if len(msg) == 0 {
		return Message{}, ErrEmptyMessage
	}

	switch msg[0] {
	case KindCommand:
		var env domain.Envelope
		if err := json.Unmarshal(msg[1:], &env); err != nil {
			return Message{}, &DecodeError{Err: err}
		}
		if env.Action == "" {
			return Message{}, &DecodeError{Err: ErrMissingAction}
		}
		if len(env.Payload) == 0 {
			env.Payload = nullPayload
		}
		return Message{Kind: KindCommand, Envelope: env}, nil

	case KindBatch:
		if len(msg) < headerSize {
			return Message{}, &DecodeError{Err: ErrShortBatch}
		}
		payload := msg[headerSize:]
		b, err := DecodeBatchPayload(payload)
		if err != nil {
			return Message{}, err
		}
		return Message{Kind: KindBatch, Batch: b, Payload: payload}, nil

	default:
		return Message{}, fmt.Errorf("%w: %d", ErrUnknownKind, msg[0])
	}
}

// DecodeBatchPayload decodes a batch body with the header already stripped.
func DecodeBatchPayload(p []byte) (domain.Batch, error) {
	if len(p) < fixedPayloadSize {
		return domain.Batch{}, &DecodeError{Err: fmt.Errorf("%w: %d bytes", ErrShortBatch, len(p))}
	}
	if len(p)%wordSize != 0 {
		return domain.Batch{}, &DecodeError{Err: ErrOddLength}
	}

	r := p
	next := func() uint16 {
		v := binary.LittleEndian.Uint16(r)
		r = r[wordSize:]
		return v
	}

	var b domain.Batch
	b.Index = next()
	b.Count = next()
	for _, axis := range [...]*[domain.SamplesPerBatch]int16{&b.Z, &b.X, &b.Y} {
		for i := range axis {
			axis[i] = int16(next())
		}
	}

	var ts [TimestampDigits]byte
	for i := range ts {
		u := next()
		if u < '0' || u > '9' {
			return domain.Batch{}, &DecodeError{Err: fmt.Errorf("timestamp: unexpected code unit %d", u)}
		}
		ts[i] = byte(u)
	}
	v, err := strconv.ParseInt(string(ts[:]), 10, 64)
	if err != nil {
		return domain.Batch{}, &DecodeError{Err: fmt.Errorf("timestamp: %w", err)}
	}
	b.Timestamp = v

	name := make([]uint16, len(r)/wordSize)
	for i := range name {
		name[i] = next()
	}
	b.Filename = string(utf16.Decode(name))
	return b, nil
}
