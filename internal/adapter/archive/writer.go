package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

// Write serializes variables into an extract archive at path, one message per
// variable in the given order. Used by cmd/genarchive and by tests; the
// production pipeline only reads archives.
func Write(path string, vars ...*dataset.Variable) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("archive %s: create: %w", path, err)
	}
	w := bufio.NewWriter(f)

	for _, v := range vars {
		if err := v.Validate(); err != nil {
			f.Close()
			return fmt.Errorf("archive %s: %w", path, err)
		}
		if err := writeMessage(w, v); err != nil {
			f.Close()
			return fmt.Errorf("archive %s: variable %q: %w", path, v.Name, err)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("archive %s: flush: %w", path, err)
	}
	return f.Close()
}

func writeMessage(w *bufio.Writer, v *dataset.Variable) error {
	hdr := messageHeader{
		Name:   v.Name,
		Dims:   v.Dims,
		Shape:  v.Shape,
		Attrs:  v.Attrs,
		Coords: make(map[string][]float64, len(v.Coords)),
	}
	for name, c := range v.Coords {
		hdr.Coords[name] = c.Values
	}

	hdrBytes, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(hdrBytes))); err != nil {
		return err
	}
	if _, err := w.Write(hdrBytes); err != nil {
		return err
	}

	var buf [8]byte
	for _, x := range v.Data {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}
