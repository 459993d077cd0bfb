package pmtiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTileNotFound is returned when an archive has no tile at a coordinate.
var ErrTileNotFound = errors.New("pmtiles: tile not found")

// maxLeafDepth bounds directory traversal on malformed archives.
const maxLeafDepth = 4

// Archive is a read-only PMTiles archive. The root directory is decoded once
// on open; leaf directories are read on demand. Safe for concurrent use when
// the underlying reader is.
type Archive struct {
	r      io.ReaderAt
	closer io.Closer
	header Header
	root   []Entry
}

// Open opens an archive file.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: open %s: %w", path, err)
	}
	a, err := NewArchive(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("pmtiles: %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// NewArchive reads the header and root directory from r.
func NewArchive(r io.ReaderAt) (*Archive, error) {
	buf := make([]byte, HeaderLen)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	a := &Archive{r: r, header: h}
	a.root, err = a.directory(h.RootOffset, h.RootLength)
	if err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}
	return a, nil
}

// Header returns the archive header.
func (a *Archive) Header() Header {
	return a.header
}

// Metadata decodes the archive's JSON metadata.
func (a *Archive) Metadata() (map[string]any, error) {
	raw, err := a.section(a.header.MetadataOffset, a.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	raw, err = decompress(raw, a.header.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: metadata: %w", err)
	}
	meta := map[string]any{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("pmtiles: metadata: %w", err)
	}
	return meta, nil
}

// Tile returns the contents of one tile, with tile compression removed.
func (a *Archive) Tile(z uint8, x, y uint32) ([]byte, error) {
	if z < a.header.MinZoom || z > a.header.MaxZoom {
		return nil, ErrTileNotFound
	}
	return a.tileIn(a.root, ZxyToID(z, x, y), 0)
}

func (a *Archive) tileIn(entries []Entry, id uint64, depth int) ([]byte, error) {
	if depth > maxLeafDepth {
		return nil, fmt.Errorf("pmtiles: directory nesting exceeds %d", maxLeafDepth)
	}
	e, ok := FindTile(entries, id)
	if !ok {
		return nil, ErrTileNotFound
	}
	if e.RunLength > 0 {
		data, err := a.section(a.header.TileDataOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return nil, err
		}
		return decompress(data, a.header.TileCompression)
	}
	leaf, err := a.directory(a.header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
	if err != nil {
		return nil, fmt.Errorf("pmtiles: leaf directory: %w", err)
	}
	return a.tileIn(leaf, id, depth+1)
}

func (a *Archive) directory(offset, length uint64) ([]Entry, error) {
	raw, err := a.section(offset, length)
	if err != nil {
		return nil, err
	}
	return UnmarshalEntries(raw, a.header.InternalCompression)
}

func (a *Archive) section(offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if length == 0 {
		return buf, nil
	}
	if _, err := a.r.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("pmtiles: read %d bytes at %d: %w", length, offset, err)
	}
	return buf, nil
}

// Close releases the underlying file, if the archive owns one.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
