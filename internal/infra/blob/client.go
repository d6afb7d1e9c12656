package blob

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Client resolves blob bytes for the versioned hashes carried by an EIP-4844
// transaction. blockTime is the timestamp of the L1 block the transaction was
// included in (needed to locate the beacon slot). The returned slice has one
// entry per requested hash, in request order; an entry is nil when that
// sidecar could not be found (pruned or not yet available). A nil entry is
// not an error.
//
// The beacon-node sidecar API is the concrete retrieval mechanism here;
// archive services (blobscan and friends) can be added as further
// implementations behind this interface.
type Client interface {
	BlobsByVersionedHashes(ctx context.Context, blockTime uint64, hashes []common.Hash) ([][]byte, error)
}

// Unavailable is a Client that never resolves any sidecar. Records scanned
// with it stay partial until a real client backfills them.
type Unavailable struct{}

func (Unavailable) BlobsByVersionedHashes(_ context.Context, _ uint64, hashes []common.Hash) ([][]byte, error) {
	return make([][]byte, len(hashes)), nil
}
