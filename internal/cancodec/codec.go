package cancodec

import (
	"encoding/binary"
	"fmt"
)

// WireFrameSize is the fixed size in bytes of one board CAN frame.
const WireFrameSize = 16

// Encode packs f into the board's 16-byte wire format.
func Encode(f Frame) ([WireFrameSize]byte, error) {
	var buf [WireFrameSize]byte
	if err := f.Validate(); err != nil {
		return buf, err
	}

	var w0 uint32
	if f.isWireExtended() {
		w0 = (f.Address << 3) | 5
	} else {
		w0 = (f.Address << 21) | 1
	}
	w1 := uint32(len(f.Data)) | (uint32(f.Src) << 4) | (uint32(f.BusTime) << 16)

	binary.LittleEndian.PutUint32(buf[0:4], w0)
	binary.LittleEndian.PutUint32(buf[4:8], w1)
	copy(buf[8:8+len(f.Data)], f.Data)
	return buf, nil
}

// Decode unpacks one 16-byte board wire frame into a Frame.
func Decode(b []byte) (Frame, error) {
	if len(b) != WireFrameSize {
		return Frame{}, fmt.Errorf("cancodec: need %d bytes, got %d", WireFrameSize, len(b))
	}

	w0 := binary.LittleEndian.Uint32(b[0:4])
	w1 := binary.LittleEndian.Uint32(b[4:8])

	extended := w0&4 != 0
	var address uint32
	if extended {
		address = w0 >> 3
	} else {
		address = w0 >> 21
	}

	length := w1 & 0xF
	if length > maxDataLen {
		return Frame{}, fmt.Errorf("%w: len=%d", ErrInvalidLength, length)
	}

	f := Frame{
		Address:  address,
		Extended: extended,
		BusTime:  uint16(w1 >> 16),
		Src:      uint8((w1 >> 4) & 0xFF),
		Data:     append([]byte(nil), b[8:8+length]...),
	}
	return f, f.Validate()
}

// EncodeBatch packs frames into one contiguous WireFrameSize*len(frames)
// byte buffer, preserving the order frames appear in the slice.
func EncodeBatch(frames []Frame) ([]byte, error) {
	buf := make([]byte, 0, len(frames)*WireFrameSize)
	for i, f := range frames {
		wire, err := Encode(f)
		if err != nil {
			return nil, fmt.Errorf("cancodec: encode frame %d: %w", i, err)
		}
		buf = append(buf, wire[:]...)
	}
	return buf, nil
}

// DecodeBatch unpacks a contiguous buffer of N frames, N = len(buf)/16,
// preserving the board's own ordering.
func DecodeBatch(buf []byte) ([]Frame, error) {
	if len(buf)%WireFrameSize != 0 {
		return nil, fmt.Errorf("cancodec: buffer length %d not a multiple of %d", len(buf), WireFrameSize)
	}
	n := len(buf) / WireFrameSize
	frames := make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		f, err := Decode(buf[i*WireFrameSize : (i+1)*WireFrameSize])
		if err != nil {
			return nil, fmt.Errorf("cancodec: decode frame %d: %w", i, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// DecodeBatchTolerant decodes as many complete frames as fit in buf,
// ignoring a trailing short remainder instead of failing the whole batch.
// It reports the number of trailing bytes dropped so the caller can log an
// overflow condition at its own rate.
func DecodeBatchTolerant(buf []byte) (frames []Frame, dropped int, err error) {
	n := len(buf) / WireFrameSize
	dropped = len(buf) % WireFrameSize
	frames = make([]Frame, 0, n)
	for i := 0; i < n; i++ {
		f, decErr := Decode(buf[i*WireFrameSize : (i+1)*WireFrameSize])
		if decErr != nil {
			return frames, dropped, fmt.Errorf("cancodec: decode frame %d: %w", i, decErr)
		}
		frames = append(frames, f)
	}
	return frames, dropped, nil
}
