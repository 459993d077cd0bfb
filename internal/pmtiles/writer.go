package pmtiles

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// DefaultLeafSize is the number of entries per leaf directory. Archives with
// at most this many entries keep everything in the root directory.
const DefaultLeafSize = 4096

// WriteOptions describes the archive being written.
type WriteOptions struct {
	Name        string
	Description string
	TileType    TileType
	// LeafSize overrides DefaultLeafSize.
	LeafSize int
}

// Write encodes tiles as a clustered PMTiles archive. Tile bodies are stored
// as given; identical bodies are stored once and consecutive identical tiles
// share one run-length entry.
func Write(w io.Writer, tiles map[maptile.Tile][]byte, opts WriteOptions) error {
	if len(tiles) == 0 {
		return errors.New("pmtiles: no tiles to write")
	}
	if opts.LeafSize <= 0 {
		opts.LeafSize = DefaultLeafSize
	}

	type tileEntry struct {
		id   uint64
		data []byte
	}
	sorted := make([]tileEntry, 0, len(tiles))
	minZoom, maxZoom := uint8(math.MaxUint8), uint8(0)
	var bound orb.Bound
	first := true
	for t, data := range tiles {
		z := uint8(t.Z)
		sorted = append(sorted, tileEntry{id: ZxyToID(z, t.X, t.Y), data: data})
		minZoom, maxZoom = min(minZoom, z), max(maxZoom, z)
		if first {
			bound, first = t.Bound(), false
		} else {
			bound = bound.Union(t.Bound())
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var (
		entries  []Entry
		tileData bytes.Buffer
		offsets  = map[string]uint64{}
	)
	for _, te := range sorted {
		off, seen := offsets[string(te.data)]
		if !seen {
			off = uint64(tileData.Len())
			offsets[string(te.data)] = off
			tileData.Write(te.data)
		}
		if n := len(entries); n > 0 {
			prev := &entries[n-1]
			if prev.Offset == off && prev.TileID+uint64(prev.RunLength) == te.id {
				prev.RunLength++
				continue
			}
		}
		entries = append(entries, Entry{TileID: te.id, Offset: off, Length: uint32(len(te.data)), RunLength: 1})
	}

	root, leaves, err := buildDirectories(entries, opts.LeafSize)
	if err != nil {
		return err
	}

	meta := map[string]any{
		"name":        opts.Name,
		"description": opts.Description,
		"format":      opts.TileType.Ext(),
		"type":        "overlay",
		"minzoom":     minZoom,
		"maxzoom":     maxZoom,
		"bounds":      []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("pmtiles: metadata: %w", err)
	}
	metadata, err := compress(metaJSON, Gzip)
	if err != nil {
		return fmt.Errorf("pmtiles: metadata: %w", err)
	}

	center := bound.Center()
	h := Header{
		SpecVersion:         3,
		RootOffset:          HeaderLen,
		RootLength:          uint64(len(root)),
		AddressedTilesCount: uint64(len(tiles)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(offsets)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     NoCompression,
		TileType:            opts.TileType,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
		MinLonE7:            e7(bound.Min.Lon()),
		MinLatE7:            e7(bound.Min.Lat()),
		MaxLonE7:            e7(bound.Max.Lon()),
		MaxLatE7:            e7(bound.Max.Lat()),
		CenterZoom:          minZoom,
		CenterLonE7:         e7(center.Lon()),
		CenterLatE7:         e7(center.Lat()),
	}
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(metadata))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = uint64(len(leaves))
	h.TileDataOffset = h.LeafDirectoryOffset + h.LeafDirectoryLength
	h.TileDataLength = uint64(tileData.Len())

	for _, section := range [][]byte{h.MarshalBinary(), root, metadata, leaves, tileData.Bytes()} {
		if _, err := w.Write(section); err != nil {
			return fmt.Errorf("pmtiles: write: %w", err)
		}
	}
	return nil
}

// buildDirectories returns the encoded root directory and the concatenated
// leaf directories. Entries fitting in one leaf stay in the root.
func buildDirectories(entries []Entry, leafSize int) ([]byte, []byte, error) {
	if len(entries) <= leafSize {
		root, err := MarshalEntries(entries, Gzip)
		return root, nil, err
	}

	var (
		leaves  bytes.Buffer
		pointer []Entry
	)
	for start := 0; start < len(entries); start += leafSize {
		end := min(start+leafSize, len(entries))
		leaf, err := MarshalEntries(entries[start:end], Gzip)
		if err != nil {
			return nil, nil, err
		}
		pointer = append(pointer, Entry{
			TileID: entries[start].TileID,
			Offset: uint64(leaves.Len()),
			Length: uint32(len(leaf)),
		})
		leaves.Write(leaf)
	}

	root, err := MarshalEntries(pointer, Gzip)
	return root, leaves.Bytes(), err
}

func e7(deg float64) int32 {
	return int32(math.Round(deg * 1e7))
}
