package decode

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vietddude/batchwatch/internal/core/domain"
)

// Extractor turns a canonical blob payload into the L2 transaction entries it
// carries. Implementations are rollup-format specific; the generic decoder
// only handles blob resolution, ordering and validation. New batch formats
// register here without touching the decoder.
type Extractor interface {
	// Format returns the batch format identifier this extractor handles.
	Format() string

	// Extract parses one blob payload. Entries come back in payload order;
	// Index is assigned later by the decoder, after cross-blob
	// concatenation.
	Extract(payload []byte) ([]domain.L2TxEntry, map[string]any, error)
}

var extractors = map[string]Extractor{}

// Register makes an extractor available under its format identifier.
func Register(e Extractor) {
	extractors[e.Format()] = e
}

// ExtractorFor looks up the extractor for a batch format identifier.
func ExtractorFor(format string) (Extractor, error) {
	e, ok := extractors[format]
	if !ok {
		return nil, fmt.Errorf("unknown batch format %q", format)
	}
	return e, nil
}

func init() {
	Register(&RLPExtractor{})
	Register(&OpstackExtractor{})
}

// RLPExtractor handles the plain format: the payload carries a single
// top-level RLP list whose elements are opaque L2 transaction byte strings.
// Zero-byte padding after the list is tolerated; any other trailing data is
// malformed.
type RLPExtractor struct{}

func (e *RLPExtractor) Format() string { return "rlp" }

func (e *RLPExtractor) Extract(payload []byte) ([]domain.L2TxEntry, map[string]any, error) {
	reader := bytes.NewReader(payload)
	s := rlp.NewStream(reader, uint64(len(payload)))

	if _, err := s.List(); err != nil {
		return nil, nil, fmt.Errorf("top-level value is not an rlp list: %w", err)
	}

	var entries []domain.L2TxEntry
	for {
		raw, err := s.Bytes()
		if errors.Is(err, rlp.EOL) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed rlp entry %d: %w", len(entries), err)
		}
		entries = append(entries, makeEntry(raw))
	}
	if err := s.ListEnd(); err != nil {
		return nil, nil, fmt.Errorf("unterminated rlp list: %w", err)
	}

	consumed := len(payload) - reader.Len()
	if err := requireZeroPadding(payload[consumed:]); err != nil {
		return nil, nil, err
	}

	meta := map[string]any{
		"payload_bytes": consumed,
	}
	return entries, meta, nil
}

func makeEntry(raw []byte) domain.L2TxEntry {
	entry := domain.L2TxEntry{
		Size:    len(raw),
		Payload: raw,
	}
	// EIP-2718 style type marker; anything above 0x7f is legacy rlp.
	if len(raw) > 0 && raw[0] <= 0x7f {
		entry.Type = raw[0]
	}
	return entry
}

func requireZeroPadding(tail []byte) error {
	for i, b := range tail {
		if b != 0 {
			return fmt.Errorf("trailing garbage at payload offset %d: 0x%02x", i, b)
		}
	}
	return nil
}

// sortFramesByNumber orders channel frames in-place. Shared by the opstack
// extractor; split out for testing.
func sortFramesByNumber(frames []channelFrame) {
	sort.Slice(frames, func(i, j int) bool { return frames[i].FrameNumber < frames[j].FrameNumber })
}
