package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// vectorIndex is the HNSW half of a scope's store. Chunk ids are strings;
// the graph wants integer keys, so an id<->key mapping is kept beside it and
// persisted in a gob sidecar next to the graph file.
type vectorIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dims  int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// vectorMeta is the persisted sidecar: the id mapping plus the dimension the
// graph was built with.
type vectorMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

// vectorHit is one nearest-neighbor result. Similarity is true cosine
// similarity over unit vectors: 1 means identical direction.
type vectorHit struct {
	ID         string
	Similarity float64
}

func newVectorIndex(dims int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &vectorIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts a vector under id, replacing any previous vector for the same
// id. The input is copied and normalized to unit length before insertion.
func (v *vectorIndex) add(id string, vec []float32) error {
	if len(vec) != v.dims {
		return fmt.Errorf("vector for %s has %d dimensions, index expects %d", id, len(vec), v.dims)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Lazy replacement: coder/hnsw's Delete corrupts the graph when it
	// removes the last node, so the old node is only unmapped. Orphans are
	// skipped during search and vanish on the next full rebuild.
	if oldKey, exists := v.idMap[id]; exists {
		delete(v.keyMap, oldKey)
		delete(v.idMap, id)
	}

	key := v.nextKey
	v.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	v.graph.Add(hnsw.MakeNode(key, normalized))
	v.idMap[id] = key
	v.keyMap[key] = id
	return nil
}

// search returns up to k nearest neighbors ordered by descending similarity.
// Orphaned graph nodes are filtered out, so fewer than k hits may come back.
func (v *vectorIndex) search(query []float32, k int) ([]vectorHit, error) {
	if len(query) != v.dims {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d", len(query), v.dims)
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	hits := make([]vectorHit, 0, len(nodes))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			continue
		}
		// CosineDistance is 1 - cos over unit vectors, so similarity is
		// recovered exactly, not rescaled.
		distance := v.graph.Distance(normalized, node.Value)
		hits = append(hits, vectorHit{ID: id, Similarity: float64(1 - distance)})
	}
	return hits, nil
}

// remove unmaps ids. Graph nodes stay behind as orphans; see add.
func (v *vectorIndex) remove(ids ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.keyMap, key)
			delete(v.idMap, id)
		}
	}
}

func (v *vectorIndex) contains(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.idMap[id]
	return ok
}

func (v *vectorIndex) count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// orphans reports how many lazy-deleted nodes remain in the graph.
func (v *vectorIndex) orphans() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.graph.Len() - len(v.idMap)
}

// save writes the graph and its sidecar atomically (temp file + rename).
func (v *vectorIndex) save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close vector index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace vector index file: %w", err)
	}

	return v.saveMeta(path + ".meta")
}

func (v *vectorIndex) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create sidecar file: %w", err)
	}

	meta := vectorMeta{IDMap: v.idMap, NextKey: v.nextKey, Dims: v.dims}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close sidecar file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// load restores a previously saved index. The sidecar is read first; a
// dimension mismatch is reported before the graph bytes are touched.
func (v *vectorIndex) load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open sidecar: %w", err)
	}
	var meta vectorMeta
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	metaFile.Close()
	if decodeErr != nil {
		return fmt.Errorf("decode sidecar: %w", decodeErr)
	}
	if meta.Dims != v.dims {
		return fmt.Errorf("vector index has %d dimensions, embedder produces %d", meta.Dims, v.dims)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer file.Close()

	// Import wants an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	return nil
}

// ReadVectorIndexDimensions reads the dimension recorded in a vector index
// sidecar without opening the index. Returns 0 when no index exists yet.
func ReadVectorIndexDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open sidecar: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("close vector index sidecar", slog.String("error", err.Error()))
		}
	}()

	var meta vectorMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode sidecar: %w", err)
	}
	return meta.Dims, nil
}

// normalizeInPlace scales a vector to unit length. Zero vectors are left
// alone.
func normalizeInPlace(v []float32) {
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
