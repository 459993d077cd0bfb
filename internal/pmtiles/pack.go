package pmtiles

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

// ReadTileDir loads every {z}/{x}/{y}.{ext} file below root. All tiles must
// share one extension; other files are ignored.
func ReadTileDir(root string) (map[maptile.Tile][]byte, TileType, error) {
	tiles := map[maptile.Tile][]byte{}
	tileType := UnknownTileType

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		t, tt, ok := parseTilePath(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		if tileType == UnknownTileType {
			tileType = tt
		} else if tt != tileType {
			return fmt.Errorf("mixed tile formats: %s is not %s", rel, tileType.Ext())
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tiles[t] = data
		return nil
	})
	if err != nil {
		return nil, UnknownTileType, fmt.Errorf("pmtiles: read %s: %w", root, err)
	}
	if len(tiles) == 0 {
		return nil, UnknownTileType, fmt.Errorf("pmtiles: no tiles under %s", root)
	}
	return tiles, tileType, nil
}

// PackDir writes the tile directory at src to a new archive at dst.
func PackDir(src, dst, name string) (int, error) {
	tiles, tileType, err := ReadTileDir(src)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("pmtiles: create %s: %w", dst, err)
	}
	if err := Write(f, tiles, WriteOptions{Name: name, TileType: tileType}); err != nil {
		f.Close()
		return 0, err
	}
	return len(tiles), f.Close()
}

func parseTilePath(rel string) (maptile.Tile, TileType, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return maptile.Tile{}, UnknownTileType, false
	}
	name, ext, ok := strings.Cut(parts[2], ".")
	if !ok {
		return maptile.Tile{}, UnknownTileType, false
	}
	tt := TileTypeFromExt(ext)
	if tt == UnknownTileType {
		return maptile.Tile{}, UnknownTileType, false
	}

	z, errZ := strconv.ParseUint(parts[0], 10, 8)
	x, errX := strconv.ParseUint(parts[1], 10, 32)
	y, errY := strconv.ParseUint(name, 10, 32)
	if errZ != nil || errX != nil || errY != nil {
		return maptile.Tile{}, UnknownTileType, false
	}
	t := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
	if uint64(t.X) >= 1<<z || uint64(t.Y) >= 1<<z {
		return maptile.Tile{}, UnknownTileType, false
	}
	return t, tt, true
}
