package blob

import "fmt"

const (
	fieldElementSize = 32
	fieldElements    = 4096
	usableBytesPerFE = 31
)

// MaxPayloadSize is the usable byte capacity of a single blob.
const MaxPayloadSize = fieldElements * usableBytesPerFE

// Payload extracts the canonical payload from a blob: 31 usable bytes per
// 32-byte field element. The leading byte of every field element must be
// zero so the element stays below the BLS modulus; anything else means the
// blob was not produced by this encoding.
func Payload(blob []byte) ([]byte, error) {
	if len(blob) != fieldElements*fieldElementSize {
		return nil, fmt.Errorf("bad blob size: expected %d, got %d", fieldElements*fieldElementSize, len(blob))
	}

	out := make([]byte, 0, MaxPayloadSize)
	for i := 0; i < fieldElements; i++ {
		fe := blob[i*fieldElementSize : (i+1)*fieldElementSize]
		if fe[0] != 0 {
			return nil, fmt.Errorf("field element %d has non-zero high byte 0x%02x", i, fe[0])
		}
		out = append(out, fe[1:]...)
	}
	return out, nil
}

// Encode packs a payload into blob form, the inverse of Payload. Used by
// tests and tooling; payloads longer than MaxPayloadSize do not fit in a
// single blob.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large for one blob: %d > %d", len(payload), MaxPayloadSize)
	}

	blob := make([]byte, fieldElements*fieldElementSize)
	for i := 0; i < fieldElements; i++ {
		start := i * usableBytesPerFE
		if start >= len(payload) {
			break
		}
		end := start + usableBytesPerFE
		if end > len(payload) {
			end = len(payload)
		}
		copy(blob[i*fieldElementSize+1:], payload[start:end])
	}
	return blob, nil
}
