package pmtiles

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZxyToID(t *testing.T) {
	assert.Equal(t, uint64(0), ZxyToID(0, 0, 0))
	assert.Equal(t, uint64(1), ZxyToID(1, 0, 0))
	assert.Equal(t, uint64(2), ZxyToID(1, 0, 1))
	assert.Equal(t, uint64(3), ZxyToID(1, 1, 1))
	assert.Equal(t, uint64(4), ZxyToID(1, 1, 0))
	assert.Equal(t, uint64(5), ZxyToID(2, 0, 0))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		SpecVersion:         3,
		RootOffset:          127,
		RootLength:          25,
		MetadataOffset:      152,
		MetadataLength:      47,
		TileDataOffset:      199,
		TileDataLength:      8000,
		AddressedTilesCount: 12,
		TileEntriesCount:    10,
		TileContentsCount:   9,
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     NoCompression,
		TileType:            Png,
		MinZoom:             9,
		MaxZoom:             16,
		MinLonE7:            -796400000,
		MinLatE7:            435900000,
		MaxLonE7:            -795000000,
		MaxLatE7:            437000000,
		CenterZoom:          11,
		CenterLonE7:         -796000000,
		CenterLatE7:         436000000,
	}
	b := h.MarshalBinary()
	require.Len(t, b, HeaderLen)

	got, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	b[0] = 'X'
	_, err = ParseHeader(b)
	assert.ErrorIs(t, err, ErrBadMagic)

	_, err = ParseHeader(b[:10])
	assert.Error(t, err)
}

func TestEntriesRoundTrip(t *testing.T) {
	entries := []Entry{
		{TileID: 1, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 2, Offset: 10, Length: 20, RunLength: 3},
		{TileID: 9, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 40, Offset: 30, Length: 5, RunLength: 0},
	}
	for _, c := range []Compression{NoCompression, Gzip} {
		raw, err := MarshalEntries(entries, c)
		require.NoError(t, err)
		got, err := UnmarshalEntries(raw, c)
		require.NoError(t, err)
		assert.Equal(t, entries, got)
	}
}

func TestFindTile(t *testing.T) {
	entries := []Entry{
		{TileID: 5, RunLength: 1},
		{TileID: 10, RunLength: 3},
		{TileID: 20, RunLength: 0},
	}

	e, ok := FindTile(entries, 5)
	require.True(t, ok)
	assert.Equal(t, uint64(5), e.TileID)

	e, ok = FindTile(entries, 12)
	require.True(t, ok)
	assert.Equal(t, uint64(10), e.TileID)

	_, ok = FindTile(entries, 13)
	assert.False(t, ok)
	_, ok = FindTile(entries, 4)
	assert.False(t, ok)

	e, ok = FindTile(entries, 999)
	require.True(t, ok, "ids past a leaf pointer resolve to the leaf")
	assert.Zero(t, e.RunLength)
}

func sampleTiles(z maptile.Zoom, n uint32) map[maptile.Tile][]byte {
	tiles := map[maptile.Tile][]byte{}
	for x := uint32(0); x < n; x++ {
		for y := uint32(0); y < n; y++ {
			tiles[maptile.New(x, y, z)] = []byte(fmt.Sprintf("tile-%d-%d-%d", z, x, y))
		}
	}
	return tiles
}

func TestWriteRead(t *testing.T) {
	tiles := sampleTiles(3, 8)
	tiles[maptile.New(0, 0, 0)] = []byte("root")
	// Duplicate content is stored once.
	tiles[maptile.New(1, 1, 1)] = []byte("root")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tiles, WriteOptions{Name: "Land Use Risk", TileType: Png}))

	a, err := NewArchive(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	h := a.Header()
	assert.Equal(t, uint8(0), h.MinZoom)
	assert.Equal(t, uint8(3), h.MaxZoom)
	assert.Equal(t, Png, h.TileType)
	assert.Equal(t, uint64(len(tiles)), h.AddressedTilesCount)
	assert.Equal(t, uint64(len(tiles)-1), h.TileContentsCount)
	assert.Zero(t, h.LeafDirectoryLength)

	for tile, want := range tiles {
		got, err := a.Tile(uint8(tile.Z), tile.X, tile.Y)
		require.NoError(t, err, "tile %v", tile)
		assert.Equal(t, want, got)
	}

	_, err = a.Tile(2, 3, 3)
	assert.ErrorIs(t, err, ErrTileNotFound)
	_, err = a.Tile(12, 0, 0)
	assert.ErrorIs(t, err, ErrTileNotFound)

	meta, err := a.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "Land Use Risk", meta["name"])
	assert.Equal(t, "png", meta["format"])
}

func TestWriteLeafDirectories(t *testing.T) {
	tiles := sampleTiles(5, 32)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tiles, WriteOptions{TileType: Webp, LeafSize: 100}))

	a, err := NewArchive(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.NotZero(t, a.Header().LeafDirectoryLength)

	for tile, want := range tiles {
		got, err := a.Tile(uint8(tile.Z), tile.X, tile.Y)
		require.NoError(t, err, "tile %v", tile)
		require.Equal(t, want, got)
	}
}

func TestRunLength(t *testing.T) {
	tiles := map[maptile.Tile][]byte{}
	for x := uint32(0); x < 4; x++ {
		for y := uint32(0); y < 4; y++ {
			tiles[maptile.New(x, y, 2)] = []byte("ocean")
		}
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tiles, WriteOptions{TileType: Png}))
	a, err := NewArchive(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), a.Header().TileEntriesCount)
	got, err := a.Tile(2, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("ocean"), got)
}

func TestWriteEmpty(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, nil, WriteOptions{}))
}

func TestPackDir(t *testing.T) {
	src := t.TempDir()
	write := func(rel, body string) {
		p := filepath.Join(src, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	write("11/571/745.png", "a")
	write("11/572/745.png", "b")
	write("12/1143/1491.png", "c")
	write("README.txt", "ignored")
	write("11/571/notes.md", "ignored")

	dst := filepath.Join(t.TempDir(), "out.pmtiles")
	n, err := PackDir(src, dst, "Trucks")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	a, err := Open(dst)
	require.NoError(t, err)
	defer a.Close()

	got, err := a.Tile(12, 1143, 1491)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)
}

func TestReadTileDirMixedFormats(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "1", "0"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "1", "0", "0.png"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "1", "0", "1.jpg"), []byte("b"), 0o644))

	_, _, err := ReadTileDir(src)
	assert.Error(t, err)
}
