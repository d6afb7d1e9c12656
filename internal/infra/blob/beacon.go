package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
)

const (
	lenKzgCommitment = 48
	lenBlobBytes     = 131072
)

var (
	beaconGenesisEndpoint = "/eth/v1/beacon/genesis"
	beaconSpecEndpoint    = "/eth/v1/config/spec"
	beaconBlobEndpoint    = "/eth/v1/beacon/blob_sidecars"
)

// BeaconClient fetches blob sidecars from a beacon node.
type BeaconClient struct {
	apiEndpoint    string
	httpClient     *http.Client
	genesisTime    uint64
	secondsPerSlot uint64
}

// NewBeaconClient connects to a beacon node API endpoint. Genesis time and
// seconds-per-slot are fetched once so slots can be computed from L1 block
// timestamps.
func NewBeaconClient(ctx context.Context, apiEndpoint string) (*BeaconClient, error) {
	c := &BeaconClient{
		apiEndpoint: apiEndpoint,
		httpClient:  http.DefaultClient,
	}

	var genesisResp genesisResp
	if err := c.getJSON(ctx, beaconGenesisEndpoint, &genesisResp); err != nil {
		return nil, fmt.Errorf("failed to fetch beacon genesis: %w", err)
	}
	genesisTime, err := strconv.ParseUint(genesisResp.Data.GenesisTime, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse genesis time %s: %w", genesisResp.Data.GenesisTime, err)
	}

	var specResp specResp
	if err := c.getJSON(ctx, beaconSpecEndpoint, &specResp); err != nil {
		return nil, fmt.Errorf("failed to fetch beacon spec: %w", err)
	}
	secondsPerSlot, err := strconv.ParseUint(specResp.Data.SecondsPerSlot, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seconds per slot %s: %w", specResp.Data.SecondsPerSlot, err)
	}
	if secondsPerSlot == 0 {
		return nil, fmt.Errorf("beacon node reported seconds per slot = 0")
	}

	c.genesisTime = genesisTime
	c.secondsPerSlot = secondsPerSlot
	return c, nil
}

// BlobsByVersionedHashes fetches the sidecars for the slot containing
// blockTime and matches them to the requested versioned hashes by recomputing
// each commitment's versioned hash.
func (c *BeaconClient) BlobsByVersionedHashes(
	ctx context.Context,
	blockTime uint64,
	hashes []common.Hash,
) ([][]byte, error) {
	if blockTime < c.genesisTime {
		return nil, fmt.Errorf("block time %d precedes beacon genesis %d", blockTime, c.genesisTime)
	}
	slot := (blockTime - c.genesisTime) / c.secondsPerSlot

	var sidecars blobSidecarResp
	endpoint := fmt.Sprintf("%s/%d", beaconBlobEndpoint, slot)
	if err := c.getJSON(ctx, endpoint, &sidecars); err != nil {
		return nil, fmt.Errorf("failed to fetch blob sidecars for slot %d: %w", slot, err)
	}

	// Index sidecars by recomputed versioned hash.
	bySidecarHash := make(map[common.Hash][]byte, len(sidecars.Data))
	for _, sc := range sidecars.Data {
		commitmentBytes, err := hexBytes(sc.KzgCommitment)
		if err != nil {
			return nil, fmt.Errorf("failed to decode kzg commitment: %w", err)
		}
		if len(commitmentBytes) != lenKzgCommitment {
			return nil, fmt.Errorf("bad kzg commitment length: expected %d, got %d", lenKzgCommitment, len(commitmentBytes))
		}
		blobBytes, err := hexBytes(sc.Blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode blob data: %w", err)
		}
		if len(blobBytes) != lenBlobBytes {
			return nil, fmt.Errorf("bad blob length: expected %d, got %d", lenBlobBytes, len(blobBytes))
		}

		commitment := kzg4844.Commitment(commitmentBytes)
		versionedHash := common.Hash(kzg4844.CalcBlobHashV1(sha256.New(), &commitment))
		bySidecarHash[versionedHash] = blobBytes
	}

	out := make([][]byte, len(hashes))
	for i, h := range hashes {
		out[i] = bySidecarHash[h] // nil when the sidecar is missing
	}
	return out, nil
}

func (c *BeaconClient) getJSON(ctx context.Context, endpoint string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiEndpoint+endpoint, nil)
	if err != nil {
		return fmt.Errorf("cannot build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cannot do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("beacon node request failed, status: %s, body: %s", resp.Status, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func hexBytes(s string) ([]byte, error) {
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

type genesisResp struct {
	Data struct {
		GenesisTime string `json:"genesis_time"`
	} `json:"data"`
}

type specResp struct {
	Data struct {
		SecondsPerSlot string `json:"SECONDS_PER_SLOT"`
	} `json:"data"`
}

type blobSidecarResp struct {
	Data []struct {
		Index         string `json:"index"`
		Blob          string `json:"blob"`
		KzgCommitment string `json:"kzg_commitment"`
		KzgProof      string `json:"kzg_proof"`
	} `json:"data"`
}
