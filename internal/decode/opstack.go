package decode

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/vietddude/batchwatch/internal/core/domain"
)

// channelFrame is one segment of a compressed batch channel. Frames are
// concatenated RLP values at the front of the payload; the channel content is
// reassembled in frame-number order and zlib-decompressed into a stream of
// RLP-encoded L2 transaction byte strings.
type channelFrame struct {
	ChannelID   []byte
	FrameNumber uint64
	IsLast      bool
	Data        []byte
}

// OpstackExtractor handles OP-stack style channel framing. It exists mainly
// to prove the format seam: a second registered format with a genuinely
// different payload layout.
type OpstackExtractor struct{}

func (e *OpstackExtractor) Format() string { return "opstack" }

func (e *OpstackExtractor) Extract(payload []byte) ([]domain.L2TxEntry, map[string]any, error) {
	frames, consumed, err := readFrames(payload)
	if err != nil {
		return nil, nil, err
	}
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("payload carries no channel frames")
	}
	if err := requireZeroPadding(payload[consumed:]); err != nil {
		return nil, nil, err
	}

	sortFramesByNumber(frames)
	var channel []byte
	for _, f := range frames {
		channel = append(channel, f.Data...)
	}

	decompressed, err := inflate(channel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decompress channel: %w", err)
	}

	entries, err := readChannelEntries(decompressed)
	if err != nil {
		return nil, nil, err
	}

	meta := map[string]any{
		"frames":           len(frames),
		"compressed_bytes": len(channel),
	}
	return entries, meta, nil
}

// readFrames consumes consecutive RLP-encoded frames from the front of the
// payload. RLP is self-delimiting, so frames are peeled off one at a time
// until only padding remains.
func readFrames(payload []byte) ([]channelFrame, int, error) {
	var frames []channelFrame
	rest := payload
	for len(rest) > 0 && rest[0] != 0 {
		reader := bytes.NewReader(rest)
		s := rlp.NewStream(reader, uint64(len(rest)))

		var f channelFrame
		if err := decodeFrame(s, &f); err != nil {
			return nil, 0, fmt.Errorf("frame %d decode error at offset %d: %w", len(frames), len(payload)-len(rest), err)
		}

		consumed := len(rest) - reader.Len()
		if consumed <= 0 {
			return nil, 0, fmt.Errorf("frame decoder made no progress at offset %d", len(payload)-len(rest))
		}
		frames = append(frames, f)
		rest = rest[consumed:]
	}
	return frames, len(payload) - len(rest), nil
}

func decodeFrame(s *rlp.Stream, f *channelFrame) error {
	if _, err := s.List(); err != nil {
		return err
	}
	if err := s.Decode(&f.ChannelID); err != nil {
		return fmt.Errorf("channel id: %w", err)
	}
	if err := s.Decode(&f.FrameNumber); err != nil {
		return fmt.Errorf("frame number: %w", err)
	}
	if err := s.Decode(&f.IsLast); err != nil {
		return fmt.Errorf("is_last: %w", err)
	}
	if err := s.Decode(&f.Data); err != nil {
		return fmt.Errorf("frame data: %w", err)
	}
	return s.ListEnd()
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// readChannelEntries parses the decompressed channel: consecutive RLP byte
// strings, each one opaque L2 transaction bytes.
func readChannelEntries(channel []byte) ([]domain.L2TxEntry, error) {
	var entries []domain.L2TxEntry
	reader := bytes.NewReader(channel)
	s := rlp.NewStream(reader, uint64(len(channel)))
	for reader.Len() > 0 {
		raw, err := s.Bytes()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed channel entry %d: %w", len(entries), err)
		}
		entries = append(entries, makeEntry(raw))
	}
	return entries, nil
}
