package store

// VectorIndex is the per-generation dense index behind VectorMap (spec.md
// §3: "per-item mapping to an external dense-index label"). Adapted from
// the teacher's internal/store/hnsw.go HNSWStore: generalized from a
// generic string-keyed VectorStore interface to a single index keyed
// directly on item id (one vector per item, not per arbitrary string id),
// since VectorMap's label is always an item. Cross-process load/save is
// guarded by a gofrs/flock advisory lock, grounded on internal/embed's
// same-library use for the Ollama/MLX host lock.

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
)

// VectorIndex wraps one coder/hnsw graph keyed by item id. Deletes are
// lazy (mark-and-filter, never graph.Delete) to sidestep coder/hnsw's
// documented breakage when the last remaining node is deleted from a
// graph, same workaround the teacher's HNSWStore.Delete uses.
type VectorIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int
	deleted    map[uint64]bool
}

// NewVectorIndex creates an empty index for the given embedding
// dimensionality, cosine distance, and the teacher's M/EfSearch defaults.
func NewVectorIndex(dimensions int) *VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return &VectorIndex{graph: graph, dimensions: dimensions, deleted: make(map[uint64]bool)}
}

// Dimensions reports the index's embedding width.
func (v *VectorIndex) Dimensions() int { return v.dimensions }

// Add inserts or replaces itemID's vector. coder/hnsw re-adding the same
// key overwrites the node in place.
func (v *VectorIndex) Add(itemID int64, vec []float32) error {
	if len(vec) != v.dimensions {
		return fmt.Errorf("vector dimension mismatch: want %d got %d", v.dimensions, len(vec))
	}
	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeVectorInPlace(normalized)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.graph.Add(hnsw.MakeNode(uint64(itemID), normalized))
	delete(v.deleted, uint64(itemID))
	return nil
}

// Delete marks itemID's vector as removed; it stays in the underlying
// graph as an orphan but Search never returns it.
func (v *VectorIndex) Delete(itemID int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.deleted[uint64(itemID)] = true
}

// VectorHit is one nearest-neighbor result, with distance converted to a
// 0..1 similarity score (cosine distance ranges 0..2).
type VectorHit struct {
	ItemID int64
	Score  float64
}

// Search returns the k nearest items to query.
func (v *VectorIndex) Search(query []float32, k int) ([]VectorHit, error) {
	if len(query) != v.dimensions {
		return nil, fmt.Errorf("vector dimension mismatch: want %d got %d", v.dimensions, len(query))
	}
	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.graph.Len() == 0 {
		return nil, nil
	}
	nodes := v.graph.Search(normalized, k+len(v.deleted))
	out := make([]VectorHit, 0, len(nodes))
	for _, n := range nodes {
		if v.deleted[n.Key] {
			continue
		}
		dist := v.graph.Distance(normalized, n.Value)
		out = append(out, VectorHit{ItemID: int64(n.Key), Score: 1.0 - float64(dist)/2.0})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// Len returns the number of live (non-deleted) vectors in the index.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.graph.Len() - len(v.deleted)
}

// Save persists the graph to path under an exclusive flock, so a
// concurrent reader in another process never observes a partial write
// (spec.md §6 runtime reconciliation).
func (v *VectorIndex) Save(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock vector index: %w", err)
	}
	defer lock.Unlock()

	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector index file: %w", err)
	}
	if err := v.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("export vector index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close vector index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename vector index file: %w", err)
	}
	return saveDeletedSet(path+".meta", v.deleted)
}

func saveDeletedSet(path string, deleted map[uint64]bool) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector index metadata: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(deleted); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode vector index metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func loadDeletedSet(path string) (map[uint64]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return make(map[uint64]bool), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open vector index metadata: %w", err)
	}
	defer f.Close()
	deleted := make(map[uint64]bool)
	if err := gob.NewDecoder(f).Decode(&deleted); err != nil {
		return nil, fmt.Errorf("decode vector index metadata: %w", err)
	}
	return deleted, nil
}

// LoadVectorIndex loads a graph previously saved by Save, under a shared
// flock so a concurrent rebuild-lane Save can't interleave with the read.
func LoadVectorIndex(path string, dimensions int) (*VectorIndex, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock vector index: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector index file: %w", err)
	}
	defer f.Close()

	v := NewVectorIndex(dimensions)
	reader := bufio.NewReader(f)
	if err := v.graph.Import(reader); err != nil {
		return nil, fmt.Errorf("import vector index: %w", err)
	}
	return v, nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
