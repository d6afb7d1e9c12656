package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
)

func newBeaconTestServer(t *testing.T, commitment []byte, blobData []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(beaconGenesisEndpoint, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"genesis_time":"1606824023"}}`)
	})
	mux.HandleFunc(beaconSpecEndpoint, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"SECONDS_PER_SLOT":"12"}}`)
	})
	mux.HandleFunc(beaconBlobEndpoint+"/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/100") {
			fmt.Fprint(w, `{"data":[]}`)
			return
		}
		fmt.Fprintf(w, `{"data":[{"index":"0","blob":"0x%s","kzg_commitment":"0x%s","kzg_proof":"0x"}]}`,
			hex.EncodeToString(blobData), hex.EncodeToString(commitment))
	})
	return httptest.NewServer(mux)
}

func TestBeaconClient_BlobsByVersionedHashes(t *testing.T) {
	commitment := make([]byte, lenKzgCommitment)
	commitment[0] = 0xaa
	blobData := make([]byte, lenBlobBytes)
	blobData[1] = 0x42

	srv := newBeaconTestServer(t, commitment, blobData)
	defer srv.Close()

	ctx := context.Background()
	client, err := NewBeaconClient(ctx, srv.URL)
	if err != nil {
		t.Fatalf("NewBeaconClient failed: %v", err)
	}
	if client.secondsPerSlot != 12 {
		t.Fatalf("Expected seconds per slot 12, got %d", client.secondsPerSlot)
	}

	c := kzg4844.Commitment(commitment)
	wantHash := common.Hash(kzg4844.CalcBlobHashV1(sha256.New(), &c))
	missing := common.HexToHash("0x0111111111111111111111111111111111111111111111111111111111111111")

	// slot 100: genesis + 100*12
	blockTime := uint64(1606824023 + 100*12)
	blobs, err := client.BlobsByVersionedHashes(ctx, blockTime, []common.Hash{wantHash, missing})
	if err != nil {
		t.Fatalf("BlobsByVersionedHashes failed: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(blobs))
	}
	if blobs[0] == nil || blobs[0][1] != 0x42 {
		t.Errorf("Expected matching blob in slot 0")
	}
	if blobs[1] != nil {
		t.Errorf("Expected nil for unknown hash, got %d bytes", len(blobs[1]))
	}
}

func TestBeaconClient_BlockTimeBeforeGenesis(t *testing.T) {
	srv := newBeaconTestServer(t, make([]byte, lenKzgCommitment), make([]byte, lenBlobBytes))
	defer srv.Close()

	client, err := NewBeaconClient(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("NewBeaconClient failed: %v", err)
	}

	_, err = client.BlobsByVersionedHashes(context.Background(), 100, []common.Hash{{}})
	if err == nil {
		t.Error("Expected error for pre-genesis block time")
	}
}
