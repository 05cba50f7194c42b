package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"imgcommit/backend/posix"
	"imgcommit/chain"
)

// chainEdge is one entry of the on-disk chain manifest: child is
// backed by parent. The posix backend keeps backing pointers purely
// in memory, so the daemon has to persist the chain topology itself
// across restarts.
type chainEdge struct {
	Path    string `json:"path"`
	Backing string `json:"backing,omitempty"`
}

func loadManifest(path string) (map[string]string, error) {
	edges := make(map[string]string)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return edges, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolver: read manifest: %w", err)
	}
	var list []chainEdge
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("resolver: parse manifest: %w", err)
	}
	for _, e := range list {
		if e.Backing != "" {
			edges[e.Path] = e.Backing
		}
	}
	return edges, nil
}

// pathResolver implements rpc.LayerResolver over the posix backend: a
// layer's wire name is its filesystem path, opened (and cached) on
// first reference with its backing chain reconstructed from a
// manifest file read at startup.
type pathResolver struct {
	mu        sync.Mutex
	open      map[string]*posix.Layer
	backingOf map[string]string
	nfs       bool
	direct    bool
	writeBack bool
}

func newPathResolver(manifestPath string, nfs, direct, writeBack bool) (*pathResolver, error) {
	edges, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return &pathResolver{
		open:      make(map[string]*posix.Layer),
		backingOf: edges,
		nfs:       nfs,
		direct:    direct,
		writeBack: writeBack,
	}, nil
}

// Resolve opens path, recursively resolving and linking its backing
// chain per the manifest. Layers are never closed by the resolver
// itself; the posix backend's open files live for the daemon's
// lifetime or until DropIntermediate removes one.
func (r *pathResolver) Resolve(path string) (chain.Layer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(path)
}

func (r *pathResolver) resolveLocked(path string) (chain.Layer, bool) {
	if l, ok := r.open[path]; ok {
		return l, true
	}
	var backing *posix.Layer
	if parentPath, ok := r.backingOf[path]; ok {
		parent, ok := r.resolveLocked(parentPath)
		if !ok {
			return nil, false
		}
		backing = parent.(*posix.Layer)
	}
	l, err := posix.Open(posix.OpenParams{
		Path:      path,
		Backing:   backing,
		Flags:     chain.ReadWrite,
		Direct:    r.direct,
		WriteBack: r.writeBack,
	})
	if err != nil {
		return nil, false
	}
	r.open[path] = l
	return l, true
}

func (r *pathResolver) describe() string {
	return fmt.Sprintf("posix resolver (nfs=%v direct=%v writeback=%v, %d manifest edges)", r.nfs, r.direct, r.writeBack, len(r.backingOf))
}
