package decode

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"
)

func buildChannel(t *testing.T, txs [][]byte) []byte {
	t.Helper()
	var content []byte
	for _, tx := range txs {
		enc, err := rlp.EncodeToBytes(tx)
		if err != nil {
			t.Fatalf("rlp encode failed: %v", err)
		}
		content = append(content, enc...)
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(content); err != nil {
		t.Fatalf("zlib write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close failed: %v", err)
	}
	return buf.Bytes()
}

func buildFramePayload(t *testing.T, frames []channelFrame) []byte {
	t.Helper()
	var payload []byte
	for i := range frames {
		enc, err := rlp.EncodeToBytes(&frames[i])
		if err != nil {
			t.Fatalf("frame encode failed: %v", err)
		}
		payload = append(payload, enc...)
	}
	return payload
}

func TestOpstackExtractor_SingleFrame(t *testing.T) {
	txs := [][]byte{{0x02, 0xaa}, {0x02, 0xbb}}
	payload := buildFramePayload(t, []channelFrame{
		{ChannelID: []byte{1, 2, 3}, FrameNumber: 0, IsLast: true, Data: buildChannel(t, txs)},
	})

	e := &OpstackExtractor{}
	entries, meta, err := e.Extract(payload)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Payload[1] != 0xaa || entries[1].Payload[1] != 0xbb {
		t.Error("Entry order not preserved")
	}
	if meta["frames"] != 1 {
		t.Errorf("Expected 1 frame in metadata, got %v", meta["frames"])
	}
}

func TestOpstackExtractor_FramesReassembledInOrder(t *testing.T) {
	channel := buildChannel(t, [][]byte{{0x02, 0xaa}, {0x02, 0xbb}, {0x02, 0xcc}})
	half := len(channel) / 2

	// Frames listed out of order in the payload.
	payload := buildFramePayload(t, []channelFrame{
		{ChannelID: []byte{9}, FrameNumber: 1, IsLast: true, Data: channel[half:]},
		{ChannelID: []byte{9}, FrameNumber: 0, IsLast: false, Data: channel[:half]},
	})

	e := &OpstackExtractor{}
	entries, _, err := e.Extract(payload)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	want := []byte{0xaa, 0xbb, 0xcc}
	for i, entry := range entries {
		if entry.Payload[1] != want[i] {
			t.Errorf("Entry %d: expected 0x%02x, got 0x%02x", i, want[i], entry.Payload[1])
		}
	}
}

func TestOpstackExtractor_BadCompression(t *testing.T) {
	payload := buildFramePayload(t, []channelFrame{
		{ChannelID: []byte{1}, FrameNumber: 0, IsLast: true, Data: []byte{0xde, 0xad, 0xbe, 0xef}},
	})

	e := &OpstackExtractor{}
	if _, _, err := e.Extract(payload); err == nil {
		t.Error("Expected error for undecompressable channel")
	}
}

func TestOpstackExtractor_EmptyPayload(t *testing.T) {
	e := &OpstackExtractor{}
	if _, _, err := e.Extract(make([]byte, 64)); err == nil {
		t.Error("Expected error for payload with no frames")
	}
}
