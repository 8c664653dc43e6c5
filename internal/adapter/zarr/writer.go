package zarr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

// StoreSpec configures how a dataset is laid out on disk.
type StoreSpec struct {
	// Chunks gives the chunk length per dimension name. Dimensions without an
	// entry are stored as a single chunk spanning their full extent.
	Chunks map[string]int

	// Compressor is the default chunk codec. An empty ID stores chunks raw.
	Compressor CompressorConfig

	// Compressors overrides the codec per variable name.
	Compressors map[string]CompressorConfig

	// Variables selects which variables to persist. Empty means all.
	// Coordinates of selected variables are always persisted.
	Variables []string
}

// WriteReport summarizes a completed store write.
type WriteReport struct {
	Arrays int
	Chunks int
	Bytes  int64
}

// Writer persists datasets as chunked, compressed stores.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a store writer.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write persists the dataset (or the spec's projected subset) at path,
// fully replacing any existing store there.
//
// The store is assembled under a temporary sibling directory, then committed
// by removing the old store and renaming the new one into place. Concurrent
// writes to the same path are not safe; the caller owns exclusivity.
func (w *Writer) Write(ctx context.Context, path string, ds *dataset.Dataset, spec StoreSpec) (WriteReport, error) {
	var report WriteReport

	names, err := selectVariables(ds, spec.Variables)
	if err != nil {
		return report, err
	}

	tmp := path + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return report, fmt.Errorf("zarr: %w: clear staging dir: %w", ErrWriteFailure, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return report, fmt.Errorf("zarr: %w: create staging dir: %w", ErrWriteFailure, err)
	}
	defer os.RemoveAll(tmp)

	cons := consolidatedMeta{
		Metadata:               make(map[string]json.RawMessage),
		ZarrConsolidatedFormat: consolidatedFormat,
	}

	if err := w.writeGroup(tmp, ds.Attrs, &cons); err != nil {
		return report, err
	}

	// Coordinates of every exported variable are arrays in their own right.
	for _, name := range coordsFor(ds, names) {
		c := ds.Coords[name]
		n, b, err := w.writeArray(ctx, tmp, name, arraySource{
			dims:  []string{name},
			shape: []int{len(c.Values)},
			data:  c.Values,
		}, spec, &cons)
		if err != nil {
			return report, err
		}
		report.Arrays++
		report.Chunks += n
		report.Bytes += b
	}

	for _, name := range names {
		v := ds.Vars[name]
		n, b, err := w.writeArray(ctx, tmp, name, arraySource{
			dims:  v.Dims,
			shape: v.Shape,
			data:  v.Data,
			attrs: v.Attrs,
		}, spec, &cons)
		if err != nil {
			return report, err
		}
		report.Arrays++
		report.Chunks += n
		report.Bytes += b
	}

	if err := writeJSONFile(filepath.Join(tmp, consolidatedFile), cons); err != nil {
		return report, err
	}

	// Full-replace commit. Between RemoveIfExists and Rename the destination
	// is absent; a failure here leaves it that way and is surfaced as-is.
	if err := RemoveIfExists(path); err != nil {
		return report, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return report, fmt.Errorf("zarr: %w: commit store: %w", ErrWriteFailure, err)
	}

	w.logger.Info("store written",
		"path", path,
		"arrays", report.Arrays,
		"chunks", report.Chunks,
		"bytes", report.Bytes,
	)
	return report, nil
}

// RemoveIfExists deletes the store at path. A missing store is not an error.
func RemoveIfExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("zarr: %w: %w", ErrCleanupFailure, err)
	}
	return nil
}

// selectVariables resolves the export selection against the dataset.
func selectVariables(ds *dataset.Dataset, selection []string) ([]string, error) {
	if len(selection) == 0 {
		return ds.VarNames(), nil
	}
	for _, name := range selection {
		if _, ok := ds.Vars[name]; !ok {
			return nil, fmt.Errorf("zarr: export selection names unknown variable %q", name)
		}
	}
	return selection, nil
}

// coordsFor returns the sorted coordinate names referenced by the selected
// variables' dimensions.
func coordsFor(ds *dataset.Dataset, names []string) []string {
	seen := make(map[string]bool)
	for _, name := range names {
		for _, d := range ds.Vars[name].Dims {
			if _, ok := ds.Coords[d]; ok {
				seen[d] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for _, name := range ds.CoordNames() {
		if seen[name] {
			out = append(out, name)
		}
	}
	return out
}

func (w *Writer) writeGroup(root string, attrs map[string]string, cons *consolidatedMeta) error {
	if err := writeMetaFile(root, groupFile, groupMeta{ZarrFormat: zarrFormat}, cons); err != nil {
		return err
	}
	doc := make(map[string]any, len(attrs))
	for k, v := range attrs {
		doc[k] = v
	}
	return writeMetaFile(root, attrsFile, doc, cons)
}

// arraySource is one array to persist: a variable or a coordinate.
type arraySource struct {
	dims  []string
	shape []int
	data  []float64
	attrs map[string]string
}

// writeArray persists one array directory: .zarray, .zattrs, and its chunk
// files. Returns the chunk count and compressed byte total.
func (w *Writer) writeArray(ctx context.Context, root, name string, src arraySource, spec StoreSpec, cons *consolidatedMeta) (int, int64, error) {
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, 0, fmt.Errorf("zarr: %w: array %q: %w", ErrWriteFailure, name, err)
	}

	chunks := chunkShape(src.dims, src.shape, spec.Chunks)
	comp := compressorFor(name, spec)
	cdc, err := newCodec(comp)
	if err != nil {
		return 0, 0, err
	}

	meta := newArrayMeta(src.shape, chunks, comp)
	if err := writeMetaFile(root, filepath.Join(name, arrayFile), meta, cons); err != nil {
		return 0, 0, err
	}

	attrs := make(map[string]any, len(src.attrs)+1)
	for k, v := range src.attrs {
		attrs[k] = v
	}
	attrs[arrayDimsAttr] = src.dims
	if err := writeMetaFile(root, filepath.Join(name, attrsFile), attrs, cons); err != nil {
		return 0, 0, err
	}

	written := 0
	var bytesOut int64
	for _, idx := range chunkGrid(src.shape, chunks) {
		if err := ctx.Err(); err != nil {
			return written, bytesOut, err
		}
		raw := encodeChunk(src.data, src.shape, chunks, idx)
		compressed, err := cdc.Compress(raw)
		if err != nil {
			return written, bytesOut, fmt.Errorf("zarr: %w: array %q chunk %v: %w", ErrWriteFailure, name, idx, err)
		}
		file := filepath.Join(dir, chunkKey(idx))
		if err := os.WriteFile(file, compressed, 0o644); err != nil {
			return written, bytesOut, fmt.Errorf("zarr: %w: array %q chunk %v: %w", ErrWriteFailure, name, idx, err)
		}
		written++
		bytesOut += int64(len(compressed))
	}
	return written, bytesOut, nil
}

// chunkShape resolves the per-dimension chunk lengths for one array. A
// configured chunk longer than the dimension is clamped to the full extent.
func chunkShape(dims []string, shape []int, cfg map[string]int) []int {
	out := make([]int, len(shape))
	for i, d := range dims {
		c := cfg[d]
		if c <= 0 || c > shape[i] {
			c = shape[i]
		}
		out[i] = c
	}
	return out
}

func compressorFor(name string, spec StoreSpec) *CompressorConfig {
	cfg := spec.Compressor
	if override, ok := spec.Compressors[name]; ok {
		cfg = override
	}
	if cfg.ID == "" || cfg.ID == "none" {
		return nil
	}
	return &cfg
}

// chunkGrid enumerates every chunk index tuple for the shape. A 0-d array
// still has exactly one (empty) chunk index.
func chunkGrid(shape, chunks []int) [][]int {
	counts := make([]int, len(shape))
	total := 1
	for i := range shape {
		counts[i] = (shape[i] + chunks[i] - 1) / chunks[i]
		total *= counts[i]
	}
	grid := make([][]int, 0, total)
	idx := make([]int, len(shape))
	for {
		grid = append(grid, append([]int(nil), idx...))
		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < counts[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return grid
		}
	}
}

// encodeChunk extracts one chunk as little-endian float64 bytes. Chunks are
// uniformly sized; positions past the array edge are padded with NaN, the
// fill value declared in .zarray.
func encodeChunk(data []float64, shape, chunks, idx []int) []byte {
	size := 1
	for _, c := range chunks {
		size *= c
	}
	out := make([]byte, size*8)

	local := make([]int, len(chunks))
	global := make([]int, len(chunks))
	for flat := 0; flat < size; flat++ {
		rem := flat
		for i := len(chunks) - 1; i >= 0; i-- {
			local[i] = rem % chunks[i]
			rem /= chunks[i]
		}
		value := math.NaN()
		inBounds := true
		srcFlat := 0
		for i := range chunks {
			global[i] = idx[i]*chunks[i] + local[i]
			if global[i] >= shape[i] {
				inBounds = false
				break
			}
			srcFlat = srcFlat*shape[i] + global[i]
		}
		if inBounds {
			value = data[srcFlat]
		}
		binary.LittleEndian.PutUint64(out[flat*8:], math.Float64bits(value))
	}
	return out
}

// chunkKey renders a chunk index as its Zarr v2 file name, e.g. "0.2.1".
func chunkKey(idx []int) string {
	if len(idx) == 0 {
		return "0"
	}
	parts := make([]string, len(idx))
	for i, x := range idx {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ".")
}

// writeMetaFile writes one JSON metadata document and records it in the
// consolidated index under its store-relative path.
func writeMetaFile(root, rel string, doc any, cons *consolidatedMeta) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("zarr: %w: encode %s: %w", ErrWriteFailure, rel, err)
	}
	if err := os.WriteFile(filepath.Join(root, rel), data, 0o644); err != nil {
		return fmt.Errorf("zarr: %w: write %s: %w", ErrWriteFailure, rel, err)
	}
	cons.Metadata[filepath.ToSlash(rel)] = data
	return nil
}

func writeJSONFile(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("zarr: %w: encode %s: %w", ErrWriteFailure, filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("zarr: %w: write %s: %w", ErrWriteFailure, filepath.Base(path), err)
	}
	return nil
}
