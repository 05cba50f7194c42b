// Package verify checks that a commit job preserved the guest-visible
// contents of an image chain: whatever a reader saw through Top
// before the commit must read back identically through Base
// afterwards, run for run.
package verify

import (
	"context"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"imgcommit/chain"
)

// sectorsPerDigest is the number of chain.SectorSize sectors hashed
// as one unit; it doesn't need to match the job's own chunk size,
// only to evenly divide a convenient digest granularity (here 64KiB).
const sectorsPerDigest = (64 * 1024) / chain.SectorSize

// Digest is the content fingerprint of an image as seen through a
// single chain node, one hash per sectorsPerDigest-sector run.
type Digest struct {
	Runs         [][32]byte
	TotalSectors int64
}

// Snapshot hashes every run of layer as currently visible (i.e.
// reading through its backing chain for any hole), for later
// comparison with Verify.
func Snapshot(ctx context.Context, adapter chain.Adapter, layer chain.Layer) (*Digest, error) {
	length, err := adapter.Length(ctx, layer)
	if err != nil {
		return nil, fmt.Errorf("verify: length: %w", err)
	}
	total := (length + chain.SectorSize - 1) / chain.SectorSize
	d := &Digest{TotalSectors: total}
	buf := make([]byte, sectorsPerDigest*chain.SectorSize)
	for sector := int64(0); sector < total; sector += sectorsPerDigest {
		n := sectorsPerDigest
		if remaining := total - sector; int64(n) > remaining {
			n = int(remaining)
		}
		window := buf[:n*chain.SectorSize]
		if err := adapter.ReadAt(ctx, layer, sector, n, window); err != nil {
			return nil, fmt.Errorf("verify: read at sector %d: %w", sector, err)
		}
		d.Runs = append(d.Runs, blake2b.Sum256(window))
	}
	return d, nil
}

// Verify re-snapshots layer and reports the starting sector of any
// run whose content changed since before, in ascending order.
func Verify(ctx context.Context, adapter chain.Adapter, layer chain.Layer, before *Digest) ([]int64, error) {
	after, err := Snapshot(ctx, adapter, layer)
	if err != nil {
		return nil, err
	}
	if after.TotalSectors != before.TotalSectors {
		return nil, fmt.Errorf("verify: length changed from %d to %d sectors", before.TotalSectors, after.TotalSectors)
	}
	var mismatches []int64
	for i, want := range before.Runs {
		if i >= len(after.Runs) {
			break
		}
		if after.Runs[i] != want {
			mismatches = append(mismatches, int64(i)*sectorsPerDigest)
		}
	}
	return mismatches, nil
}
