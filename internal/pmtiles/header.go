// Package pmtiles reads and writes PMTiles v3 archives of raster tiles.
//
// An archive is a single file: a fixed 127-byte header, a root directory,
// JSON metadata, optional leaf directories and the tile data section. Tiles
// are addressed by Hilbert tile id, and directories are varint-encoded and
// optionally gzip-compressed.
//
// Format: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Compression is the compression applied to directories, metadata or tiles.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

// TileType is the format of individual tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

// TileTypeFromExt maps a file extension to a tile type.
func TileTypeFromExt(ext string) TileType {
	switch ext {
	case "png", ".png":
		return Png
	case "jpg", ".jpg", "jpeg", ".jpeg":
		return Jpeg
	case "webp", ".webp":
		return Webp
	case "avif", ".avif":
		return Avif
	case "mvt", ".mvt", "pbf", ".pbf":
		return Mvt
	default:
		return UnknownTileType
	}
}

// Ext returns the file extension of a tile type, without the dot.
func (t TileType) Ext() string {
	switch t {
	case Png:
		return "png"
	case Jpeg:
		return "jpg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	case Mvt:
		return "mvt"
	default:
		return ""
	}
}

// HeaderLen is the size of the fixed binary header.
const HeaderLen = 127

const magic = "PMTiles"

// ErrBadMagic is returned when a file is not a PMTiles archive.
var ErrBadMagic = errors.New("pmtiles: magic number not detected")

// Header is the fixed header of a v3 archive.
type Header struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() []byte {
	b := make([]byte, HeaderLen)
	copy(b, magic)
	b[7] = 3

	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength,
		h.MetadataOffset, h.MetadataLength,
		h.LeafDirectoryOffset, h.LeafDirectoryLength,
		h.TileDataOffset, h.TileDataLength,
		h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount,
	} {
		le.PutUint64(b[8+i*8:], v)
	}

	if h.Clustered {
		b[96] = 1
	}
	b[97] = uint8(h.InternalCompression)
	b[98] = uint8(h.TileCompression)
	b[99] = uint8(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], uint32(h.MinLonE7))
	le.PutUint32(b[106:], uint32(h.MinLatE7))
	le.PutUint32(b[110:], uint32(h.MaxLonE7))
	le.PutUint32(b[114:], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], uint32(h.CenterLonE7))
	le.PutUint32(b[123:], uint32(h.CenterLatE7))
	return b
}

// ParseHeader decodes a header.
func ParseHeader(b []byte) (Header, error) {
	var h Header
	if len(b) < HeaderLen {
		return h, fmt.Errorf("pmtiles: header needs %d bytes, got %d", HeaderLen, len(b))
	}
	if string(b[:7]) != magic {
		return h, ErrBadMagic
	}

	le := binary.LittleEndian
	u64 := func(i int) uint64 { return le.Uint64(b[8+i*8:]) }
	i32 := func(off int) int32 { return int32(le.Uint32(b[off:])) }

	h.SpecVersion = b[7]
	h.RootOffset, h.RootLength = u64(0), u64(1)
	h.MetadataOffset, h.MetadataLength = u64(2), u64(3)
	h.LeafDirectoryOffset, h.LeafDirectoryLength = u64(4), u64(5)
	h.TileDataOffset, h.TileDataLength = u64(6), u64(7)
	h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount = u64(8), u64(9), u64(10)
	h.Clustered = b[96] == 1
	h.InternalCompression = Compression(b[97])
	h.TileCompression = Compression(b[98])
	h.TileType = TileType(b[99])
	h.MinZoom, h.MaxZoom = b[100], b[101]
	h.MinLonE7, h.MinLatE7 = i32(102), i32(106)
	h.MaxLonE7, h.MaxLatE7 = i32(110), i32(114)
	h.CenterZoom = b[118]
	h.CenterLonE7, h.CenterLatE7 = i32(119), i32(123)

	if h.SpecVersion != 3 {
		return h, fmt.Errorf("pmtiles: unsupported spec version %d", h.SpecVersion)
	}
	return h, nil
}

// ZxyToID converts tile coordinates to a Hilbert tile id.
func ZxyToID(z uint8, x, y uint32) uint64 {
	acc := (uint64(1)<<(uint64(z)*2) - 1) / 3
	if z == 0 {
		return acc
	}
	n := uint32(z - 1)
	for s := uint32(1) << n; s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

func rotate(n, x, y, rx, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}
