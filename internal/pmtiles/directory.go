package pmtiles

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Entry is one directory entry. RunLength 0 marks a pointer to a leaf
// directory; otherwise the entry covers RunLength consecutive tile ids that
// share the same data.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// MarshalEntries encodes a directory: count, delta-encoded tile ids, run
// lengths, lengths and offsets (0 meaning contiguous with the previous entry).
func MarshalEntries(entries []Entry, compression Compression) ([]byte, error) {
	var raw bytes.Buffer
	tmp := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(tmp, v)
		raw.Write(tmp[:n])
	}

	put(uint64(len(entries)))
	var last uint64
	for _, e := range entries {
		put(e.TileID - last)
		last = e.TileID
	}
	for _, e := range entries {
		put(uint64(e.RunLength))
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			put(0)
		} else {
			put(e.Offset + 1)
		}
	}

	return compress(raw.Bytes(), compression)
}

// UnmarshalEntries decodes a directory.
func UnmarshalEntries(data []byte, compression Compression) ([]Entry, error) {
	raw, err := decompress(data, compression)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: directory: %w", err)
	}
	r := bufio.NewReader(bytes.NewReader(raw))

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: directory count: %w", err)
	}
	if count > uint64(len(raw)) {
		return nil, fmt.Errorf("pmtiles: directory claims %d entries in %d bytes", count, len(raw))
	}

	entries := make([]Entry, count)
	var last uint64
	for i := range entries {
		d, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: directory ids: %w", err)
		}
		last += d
		entries[i].TileID = last
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: directory run lengths: %w", err)
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: directory lengths: %w", err)
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: directory offsets: %w", err)
		}
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}

// FindTile returns the entry covering a tile id. Entries must be sorted by
// tile id. A returned entry with RunLength 0 points at a leaf directory.
func FindTile(entries []Entry, id uint64) (Entry, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch c := entries[mid].TileID; {
		case id > c:
			lo = mid + 1
		case id < c:
			hi = mid - 1
		default:
			return entries[mid], true
		}
	}

	// hi is now the last entry before id.
	if hi >= 0 {
		e := entries[hi]
		if e.RunLength == 0 {
			return e, true
		}
		if id-e.TileID < uint64(e.RunLength) {
			return e, true
		}
	}
	return Entry{}, false
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case Gzip:
		var b bytes.Buffer
		w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	default:
		return nil, fmt.Errorf("pmtiles: compression %d not supported", c)
	}
}

func decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression, UnknownCompression:
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("pmtiles: compression %d not supported", c)
	}
}
