package tracewire

import (
	"encoding/binary"
	"fmt"
)

// BinaryCarrier exposes one mutable byte buffer. Inject replaces the
// buffer wholesale; extract reads it wholesale.
type BinaryCarrier struct {
	Data []byte
}

// binaryCodec serializes a SpanContext to a fixed byte layout:
//
//	traceID  8 bytes, big-endian
//	spanID   8 bytes, big-endian
//	parent-present flag, 1 byte
//	parentID 8 bytes, big-endian, zero-filled if absent
//	sampled  1 byte
//	baggage count, uvarint
//	per item: key-len uvarint, key bytes, value-len uvarint, value bytes
//
// The layout is fixed for compatibility. Every length-prefixed read on
// extract is bounds-checked before it happens; truncated or overrun
// buffers fail with ErrMalformedCarrier.
type binaryCodec struct{}

func (binaryCodec) inject(sc SpanContext, carrier *BinaryCarrier) {
	buf := make([]byte, 0, 27+len(sc.Baggage)*16)
	buf = binary.BigEndian.AppendUint64(buf, sc.TraceID)
	buf = binary.BigEndian.AppendUint64(buf, sc.SpanID)
	if sc.ParentID != 0 {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint64(buf, sc.ParentID)
	if sc.Sampled {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.AppendUvarint(buf, uint64(len(sc.Baggage)))
	for k, v := range sc.Baggage {
		buf = binary.AppendUvarint(buf, uint64(len(k)))
		buf = append(buf, k...)
		buf = binary.AppendUvarint(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	carrier.Data = buf
}

func (binaryCodec) extract(carrier *BinaryCarrier) (SpanContext, error) {
	r := byteReader{buf: carrier.Data}

	traceID, err := r.uint64()
	if err != nil {
		return SpanContext{}, err
	}
	spanID, err := r.uint64()
	if err != nil {
		return SpanContext{}, err
	}
	hasParent, err := r.byte()
	if err != nil {
		return SpanContext{}, err
	}
	parentID, err := r.uint64()
	if err != nil {
		return SpanContext{}, err
	}
	sampled, err := r.byte()
	if err != nil {
		return SpanContext{}, err
	}
	if traceID == 0 || spanID == 0 {
		return SpanContext{}, fmt.Errorf("%w: zero trace or span id", ErrMalformedCarrier)
	}

	sc := SpanContext{
		TraceID: traceID,
		SpanID:  spanID,
		Sampled: sampled != 0,
	}
	if hasParent != 0 {
		sc.ParentID = parentID
	}

	count, err := r.uvarint()
	if err != nil {
		return SpanContext{}, err
	}
	// Sized by the bytes actually read, never by the declared count.
	for i := uint64(0); i < count; i++ {
		key, err := r.lengthPrefixed()
		if err != nil {
			return SpanContext{}, err
		}
		value, err := r.lengthPrefixed()
		if err != nil {
			return SpanContext{}, err
		}
		if sc.Baggage == nil {
			sc.Baggage = make(map[string]string)
		}
		sc.Baggage[string(key)] = string(value)
	}
	return sc, nil
}

// byteReader walks a buffer with bounds-checked reads.
type byteReader struct {
	buf []byte
	off int
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *byteReader) uint64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, fmt.Errorf("%w: need 8 bytes at offset %d, have %d",
			ErrMalformedCarrier, r.off, r.remaining())
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *byteReader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d", ErrMalformedCarrier, r.off)
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.off:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at offset %d", ErrMalformedCarrier, r.off)
	}
	r.off += n
	return v, nil
}

func (r *byteReader) lengthPrefixed() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d remaining bytes",
			ErrMalformedCarrier, n, r.remaining())
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}
