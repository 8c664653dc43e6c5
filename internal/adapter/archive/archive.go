// Package archive reads ERA5 extract archives: multi-message binary files in
// which each message carries one variable's array, coordinate set, and
// attributes.
//
// The pipeline treats archive decoding as an opaque capability: open the
// archive, yield exactly the one variable a selector names. Messages for
// unrelated variables are skipped without decoding their payloads, so a
// many-variable archive cannot leak dimension definitions that would later
// surface as false coordinate conflicts.
//
// # Wire format
//
// An archive is a sequence of messages, each framed as
//
//	magic   [4]byte  "EXA1"
//	hdrLen  uint32   little-endian, length of the JSON header
//	header  []byte   JSON: name, dims, shape, attrs, coords
//	payload []float64 little-endian IEEE-754, product(shape) values
//
// NaN payload values mark missing data points.
package archive

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sayantanonfire/era5-export/internal/dataset"
)

var magic = [4]byte{'E', 'X', 'A', '1'}

// maxHeaderLen bounds header allocation so a corrupt length field cannot
// exhaust memory.
const maxHeaderLen = 1 << 20

// messageHeader is the JSON frame header describing one variable message.
type messageHeader struct {
	Name   string               `json:"name"`
	Dims   []string             `json:"dims"`
	Shape  []int                `json:"shape"`
	Attrs  map[string]string    `json:"attrs,omitempty"`
	Coords map[string][]float64 `json:"coords,omitempty"`
}

// Reader opens extract archives filtered to one variable at a time.
// It implements the pipeline's VariableOpener. Read-only; safe for
// concurrent use since every call opens its own handle.
type Reader struct {
	path string
}

// NewReader creates a Reader over the archive at path. The file is not
// touched until OpenVariable is called.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// OpenVariable scans the archive for the message named by selector and
// decodes exactly that one, skipping all other payloads. Returns
// dataset.ErrVariableNotFound if no message matches and
// dataset.ErrUnreadableArchive if the file cannot be opened or framed.
func (r *Reader) OpenVariable(ctx context.Context, selector string) (*dataset.Variable, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w: %w", r.path, dataset.ErrUnreadableArchive, err)
	}
	defer f.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, payloadLen, err := readFrameHeader(f)
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("archive %s: variable %q: %w", r.path, selector, dataset.ErrVariableNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w: %w", r.path, dataset.ErrUnreadableArchive, err)
		}

		if hdr.Name != selector {
			if _, err := f.Seek(payloadLen, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("archive %s: %w: %w", r.path, dataset.ErrUnreadableArchive, err)
			}
			continue
		}

		v, err := decodeVariable(f, hdr)
		if err != nil {
			return nil, fmt.Errorf("archive %s: variable %q: %w: %w", r.path, selector, dataset.ErrUnreadableArchive, err)
		}
		return v, nil
	}
}

// readFrameHeader reads one message's magic and JSON header and returns the
// header plus the payload length in bytes. io.EOF at a clean frame boundary
// means end of archive.
func readFrameHeader(f io.Reader) (messageHeader, int64, error) {
	var m [4]byte
	if _, err := io.ReadFull(f, m[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return messageHeader{}, 0, io.EOF
		}
		return messageHeader{}, 0, fmt.Errorf("read magic: %w", err)
	}
	if m != magic {
		return messageHeader{}, 0, fmt.Errorf("bad magic %q", m)
	}

	var hdrLen uint32
	if err := binary.Read(f, binary.LittleEndian, &hdrLen); err != nil {
		return messageHeader{}, 0, fmt.Errorf("read header length: %w", err)
	}
	if hdrLen == 0 || hdrLen > maxHeaderLen {
		return messageHeader{}, 0, fmt.Errorf("implausible header length %d", hdrLen)
	}

	buf := make([]byte, hdrLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return messageHeader{}, 0, fmt.Errorf("read header: %w", err)
	}
	var hdr messageHeader
	if err := json.Unmarshal(buf, &hdr); err != nil {
		return messageHeader{}, 0, fmt.Errorf("decode header: %w", err)
	}

	n := int64(1)
	for _, s := range hdr.Shape {
		if s <= 0 {
			return messageHeader{}, 0, fmt.Errorf("variable %q: non-positive shape entry %d", hdr.Name, s)
		}
		n *= int64(s)
	}
	return hdr, n * 8, nil
}

// decodeVariable reads the payload following hdr and assembles the variable.
func decodeVariable(f io.Reader, hdr messageHeader) (*dataset.Variable, error) {
	v := &dataset.Variable{
		Name:   hdr.Name,
		Dims:   hdr.Dims,
		Shape:  hdr.Shape,
		Attrs:  hdr.Attrs,
		Coords: make(map[string]dataset.Coordinate, len(hdr.Coords)),
	}
	if v.Attrs == nil {
		v.Attrs = make(map[string]string)
	}
	for name, values := range hdr.Coords {
		v.Coords[name] = dataset.Coordinate{Name: name, Values: values}
	}

	raw := make([]byte, v.Size()*8)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	v.Data = make([]float64, v.Size())
	for i := range v.Data {
		v.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}

	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}
