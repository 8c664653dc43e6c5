package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

// Store is a read handle over a persisted store, backed entirely by the
// consolidated index: structure discovery never opens an array or chunk.
type Store struct {
	root string
	cons consolidatedMeta
}

// Open reads the consolidated index of the store at path.
func Open(path string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(path, consolidatedFile))
	if err != nil {
		return nil, fmt.Errorf("zarr: open store %s: %w", path, err)
	}
	var cons consolidatedMeta
	if err := json.Unmarshal(data, &cons); err != nil {
		return nil, fmt.Errorf("zarr: store %s: decode consolidated metadata: %w", path, err)
	}
	if cons.ZarrConsolidatedFormat != consolidatedFormat {
		return nil, fmt.Errorf("zarr: store %s: unsupported consolidated format %d", path, cons.ZarrConsolidatedFormat)
	}
	return &Store{root: path, cons: cons}, nil
}

// ArrayNames lists every array in the store, sorted.
func (s *Store) ArrayNames() []string {
	var names []string
	for key := range s.cons.Metadata {
		if name, ok := strings.CutSuffix(key, "/"+arrayFile); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Attrs returns the dataset-level attributes.
func (s *Store) Attrs() (map[string]string, error) {
	attrs, _, err := s.arrayAttrs(attrsFile)
	return attrs, err
}

// ArrayMeta returns the .zarray document for one array.
func (s *Store) ArrayMeta(name string) (shape, chunks []int, compressor *CompressorConfig, err error) {
	raw, ok := s.cons.Metadata[name+"/"+arrayFile]
	if !ok {
		return nil, nil, nil, fmt.Errorf("zarr: store has no array %q", name)
	}
	var meta arrayMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, nil, nil, fmt.Errorf("zarr: array %q: decode metadata: %w", name, err)
	}
	return meta.Shape, meta.Chunks, meta.Compressor, nil
}

// Read materializes one array as a variable: all chunks decompressed and
// reassembled, edge padding discarded.
func (s *Store) Read(name string) (*dataset.Variable, error) {
	shape, chunks, comp, err := s.ArrayMeta(name)
	if err != nil {
		return nil, err
	}
	attrs, dims, err := s.arrayAttrs(name + "/" + attrsFile)
	if err != nil {
		return nil, err
	}
	cdc, err := newCodec(comp)
	if err != nil {
		return nil, err
	}

	size := 1
	for _, x := range shape {
		size *= x
	}
	data := make([]float64, size)

	for _, idx := range chunkGrid(shape, chunks) {
		raw, err := os.ReadFile(filepath.Join(s.root, name, chunkKey(idx)))
		if err != nil {
			return nil, fmt.Errorf("zarr: array %q: read chunk %v: %w", name, idx, err)
		}
		decoded, err := cdc.Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("zarr: array %q: chunk %v: %w", name, idx, err)
		}
		if err := scatterChunk(data, shape, chunks, idx, decoded); err != nil {
			return nil, fmt.Errorf("zarr: array %q: chunk %v: %w", name, idx, err)
		}
	}

	return &dataset.Variable{
		Name:   name,
		Dims:   dims,
		Shape:  shape,
		Data:   data,
		Attrs:  attrs,
		Coords: map[string]dataset.Coordinate{},
	}, nil
}

// Dataset reads every array back into one dataset, reattaching 1-D
// self-indexed arrays as coordinates.
func (s *Store) Dataset() (*dataset.Dataset, error) {
	attrs, err := s.Attrs()
	if err != nil {
		return nil, err
	}
	ds := &dataset.Dataset{
		Vars:   make(map[string]*dataset.Variable),
		Coords: make(map[string]dataset.Coordinate),
		Attrs:  attrs,
	}

	var vars []*dataset.Variable
	for _, name := range s.ArrayNames() {
		v, err := s.Read(name)
		if err != nil {
			return nil, err
		}
		if len(v.Dims) == 1 && v.Dims[0] == name {
			ds.Coords[name] = dataset.Coordinate{Name: name, Values: v.Data}
			continue
		}
		vars = append(vars, v)
	}

	for _, v := range vars {
		for _, d := range v.Dims {
			if c, ok := ds.Coords[d]; ok {
				v.Coords[d] = c
			}
		}
		ds.Vars[v.Name] = v
	}
	return ds, nil
}

// arrayAttrs decodes a .zattrs document into flat string attributes plus the
// dimension list carried in _ARRAY_DIMENSIONS.
func (s *Store) arrayAttrs(key string) (map[string]string, []string, error) {
	attrs := make(map[string]string)
	raw, ok := s.cons.Metadata[key]
	if !ok {
		return attrs, nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("zarr: decode %s: %w", key, err)
	}

	var dims []string
	for k, v := range doc {
		if k == arrayDimsAttr {
			list, ok := v.([]any)
			if !ok {
				return nil, nil, fmt.Errorf("zarr: %s: malformed %s", key, arrayDimsAttr)
			}
			for _, d := range list {
				name, ok := d.(string)
				if !ok {
					return nil, nil, fmt.Errorf("zarr: %s: malformed %s", key, arrayDimsAttr)
				}
				dims = append(dims, name)
			}
			continue
		}
		attrs[k] = fmt.Sprint(v)
	}
	return attrs, dims, nil
}

// scatterChunk copies one decompressed chunk into the destination array,
// dropping fill padding past the array edge.
func scatterChunk(data []float64, shape, chunks, idx []int, raw []byte) error {
	size := 1
	for _, c := range chunks {
		size *= c
	}
	if len(raw) != size*8 {
		return fmt.Errorf("chunk has %d bytes, want %d", len(raw), size*8)
	}

	local := make([]int, len(chunks))
	for flat := 0; flat < size; flat++ {
		rem := flat
		for i := len(chunks) - 1; i >= 0; i-- {
			local[i] = rem % chunks[i]
			rem /= chunks[i]
		}
		dstFlat := 0
		inBounds := true
		for i := range chunks {
			g := idx[i]*chunks[i] + local[i]
			if g >= shape[i] {
				inBounds = false
				break
			}
			dstFlat = dstFlat*shape[i] + g
		}
		if !inBounds {
			continue
		}
		data[dstFlat] = math.Float64frombits(binary.LittleEndian.Uint64(raw[flat*8:]))
	}
	return nil
}
