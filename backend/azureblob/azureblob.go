// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package azureblob backs a commit job's Base layer with an Azure page
// blob, for folding a Top layer into a cold/archive-tier image without
// ever downloading it whole. Only Base may be a blob layer: Top and
// Active still come from a local chain.Adapter (posix or memory),
// since the engine only ever reads Top and writes Base.
package azureblob

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/url"
	"sync"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"imgcommit/chain"
)

// Layer is a single Azure page blob acting as a chain.Adapter Base.
type Layer struct {
	name    string
	blobURL azblob.PageBlobURL
	backing chain.Layer // the local layer this blob is chained to, if any

	mu   sync.Mutex
	size int64
}

func (l *Layer) String() string { return l.name }

// Open attaches to an existing page blob named name inside container,
// or creates one of sizeHint bytes (rounded up to the page-blob 512B
// page boundary) if it does not yet exist.
func Open(ctx context.Context, accountURL, container, name string, cred azblob.Credential, sizeHint int64) (*Layer, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/%s", accountURL, container, name))
	if err != nil {
		return nil, fmt.Errorf("azureblob: parse url: %w", err)
	}
	pipeline := azblob.NewPipeline(cred, azblob.PipelineOptions{})
	blobURL := azblob.NewPageBlobURL(*u, pipeline)

	size := sizeHint
	if props, err := blobURL.GetProperties(ctx, azblob.BlobAccessConditions{}); err == nil {
		size = props.ContentLength()
	} else {
		if size%512 != 0 {
			size += 512 - size%512
		}
		if _, err := blobURL.Create(ctx, size, 0, azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{}); err != nil {
			return nil, fmt.Errorf("azureblob: create %s: %w", name, err)
		}
	}
	return &Layer{name: name, blobURL: blobURL, size: size}, nil
}

// Backend is a chain.Adapter whose Base-side operations are served by
// Azure page blobs; all other methods delegate to an underlying local
// adapter for the Top/Active side of the chain.
type Backend struct {
	local chain.Adapter
}

// New wraps local (a posix or memory adapter serving Top/Active) with
// Azure-backed handling for any Layer that is a *Layer.
func New(local chain.Adapter) *Backend {
	return &Backend{local: local}
}

func (b *Backend) isBlob(l chain.Layer) (*Layer, bool) {
	bl, ok := l.(*Layer)
	return bl, ok
}

func (b *Backend) Length(ctx context.Context, layer chain.Layer) (int64, error) {
	if l, ok := b.isBlob(layer); ok {
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.size, nil
	}
	return b.local.Length(ctx, layer)
}

func (b *Backend) Truncate(ctx context.Context, layer chain.Layer, n int64) error {
	l, ok := b.isBlob(layer)
	if !ok {
		return b.local.Truncate(ctx, layer, n)
	}
	if n%512 != 0 {
		n += 512 - n%512
	}
	if _, err := l.blobURL.Resize(ctx, n, azblob.BlobAccessConditions{}); err != nil {
		return fmt.Errorf("azureblob: resize %s: %w", l.name, err)
	}
	l.mu.Lock()
	l.size = n
	l.mu.Unlock()
	return nil
}

func (b *Backend) ReadAt(ctx context.Context, layer chain.Layer, sector int64, n int, buf []byte) error {
	l, ok := b.isBlob(layer)
	if !ok {
		return b.local.ReadAt(ctx, layer, sector, n, buf)
	}
	off := sector * chain.SectorSize
	want := int64(n) * chain.SectorSize
	resp, err := l.blobURL.Download(ctx, off, want, azblob.BlobAccessConditions{}, false)
	if err != nil {
		return fmt.Errorf("azureblob: download %s: %w", l.name, err)
	}
	body := resp.Body(azblob.RetryReaderOptions{})
	defer body.Close()
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return fmt.Errorf("azureblob: read body %s: %w", l.name, err)
	}
	copy(buf, data)
	return nil
}

func (b *Backend) WriteAt(ctx context.Context, layer chain.Layer, sector int64, n int, buf []byte) error {
	l, ok := b.isBlob(layer)
	if !ok {
		return b.local.WriteAt(ctx, layer, sector, n, buf)
	}
	off := sector * chain.SectorSize
	want := n * chain.SectorSize
	_, err := l.blobURL.UploadPages(ctx, off, bytes.NewReader(buf[:want]), azblob.PageBlobAccessConditions{}, nil, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		return fmt.Errorf("azureblob: upload pages %s: %w", l.name, err)
	}
	return nil
}

// IsAllocatedAbove, FindOverlay and DropIntermediate concern the
// Top/Active side of the chain (never the blob Base), so they always
// delegate.
func (b *Backend) IsAllocatedAbove(ctx context.Context, top, base chain.Layer, sector int64, nReq int) (chain.AllocState, int, error) {
	return b.local.IsAllocatedAbove(ctx, top, base, sector, nReq)
}

func (b *Backend) FindOverlay(ctx context.Context, active, top chain.Layer) (chain.Layer, bool) {
	return b.local.FindOverlay(ctx, active, top)
}

func (b *Backend) GetFlags(ctx context.Context, layer chain.Layer) (chain.OpenFlags, error) {
	if _, ok := b.isBlob(layer); ok {
		return chain.ReadWrite, nil // page blobs have no read-only lease concept here
	}
	return b.local.GetFlags(ctx, layer)
}

func (b *Backend) ReopenMultiple(ctx context.Context, queue []chain.ReopenRequest) error {
	var local []chain.ReopenRequest
	for _, r := range queue {
		if _, ok := b.isBlob(r.Layer); !ok {
			local = append(local, r)
		}
	}
	if len(local) == 0 {
		return nil
	}
	return b.local.ReopenMultiple(ctx, local)
}

func (b *Backend) DropIntermediate(ctx context.Context, active, top, base chain.Layer) error {
	return b.local.DropIntermediate(ctx, active, top, base)
}

func (b *Backend) IOStatusEnabled(layer chain.Layer) bool {
	if _, ok := b.isBlob(layer); ok {
		return true
	}
	return b.local.IOStatusEnabled(layer)
}

func (b *Backend) Sleep(ctx context.Context, ms int64) error {
	return b.local.Sleep(ctx, ms)
}

func (b *Backend) QIOVAligned(layer chain.Layer, length int) bool {
	if _, ok := b.isBlob(layer); ok {
		return length%512 == 0 // page blobs require 512B-aligned ranges
	}
	return b.local.QIOVAligned(layer, length)
}

func (b *Backend) BlockAlign(layer chain.Layer, length int) int {
	if _, ok := b.isBlob(layer); ok {
		if rem := length % 512; rem != 0 {
			length += 512 - rem
		}
		return length
	}
	return b.local.BlockAlign(layer, length)
}

var _ chain.Adapter = (*Backend)(nil)
