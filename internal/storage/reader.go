package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/coffersTech/odsearch/internal/engine"
	"github.com/klauspost/compress/zstd"
)

const (
	headerSize = 8
	footerSize = 20 // RowCount(4) + MinTs(8) + MaxTs(8)
)

var (
	ErrInvalidHeader = errors.New("invalid .snap file header")
	ErrCorrupt       = errors.New("corrupt .snap file")
)

// Footer is the trailing metadata block of a snapshot.
type Footer struct {
	RowCount int
	MinTs    int64
	MaxTs    int64
}

type ColumnReader struct {
	decoder *zstd.Decoder
}

func NewColumnReader() (*ColumnReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnReader{decoder: dec}, nil
}

// EntityIterator provides a row-by-row view of a snapshot.
type EntityIterator struct {
	file   *os.File
	footer Footer

	timestamps   []int64
	ids          []string
	names        []string
	descriptions []string
	categories   []string

	cursor int
}

// NewIterator opens a .snap file and decodes its columns.
func (cr *ColumnReader) NewIterator(filename string) (*EntityIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	it := &EntityIterator{file: f, cursor: -1}
	if err := it.init(cr); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return it, nil
}

func (it *EntityIterator) init(cr *ColumnReader) error {
	// 1. Validate Header
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(it.file, header); err != nil {
		return err
	}
	if !bytes.Equal(header, MagicHeader) {
		return ErrInvalidHeader
	}

	// 2. Read Footer (at end of file)
	footer, err := readFooter(it.file)
	if err != nil {
		return err
	}
	it.footer = footer
	if footer.RowCount == 0 {
		return nil
	}

	// 3. Read and decompress all columns
	tsData, err := cr.readAndDecompress(it.file)
	if err != nil {
		return err
	}
	it.timestamps = bytesToInt64Slice(tsData)

	cols := []*[]string{&it.ids, &it.names, &it.descriptions, &it.categories}
	for _, col := range cols {
		data, err := cr.readAndDecompress(it.file)
		if err != nil {
			return err
		}
		*col = bytesToStringSlice(data)
	}

	// Basic column length validation
	n := footer.RowCount
	if len(it.timestamps) != n || len(it.ids) != n || len(it.names) != n ||
		len(it.descriptions) != n || len(it.categories) != n {
		return fmt.Errorf("%w: column length mismatch", ErrCorrupt)
	}
	return nil
}

func readFooter(f *os.File) (Footer, error) {
	info, err := f.Stat()
	if err != nil {
		return Footer{}, err
	}
	if info.Size() < headerSize+footerSize {
		return Footer{}, fmt.Errorf("%w: file too small", ErrCorrupt)
	}

	buf := make([]byte, footerSize)
	if _, err := f.ReadAt(buf, info.Size()-footerSize); err != nil {
		return Footer{}, err
	}
	return Footer{
		RowCount: int(binary.LittleEndian.Uint32(buf[0:4])),
		MinTs:    int64(binary.LittleEndian.Uint64(buf[4:12])),
		MaxTs:    int64(binary.LittleEndian.Uint64(buf[12:20])),
	}, nil
}

func (it *EntityIterator) Next() bool {
	it.cursor++
	return it.cursor < it.footer.RowCount
}

func (it *EntityIterator) Entity() engine.Entity {
	return engine.Entity{
		ID:          it.ids[it.cursor],
		Name:        it.names[it.cursor],
		Description: it.descriptions[it.cursor],
		Category:    it.categories[it.cursor],
		CreatedAt:   it.timestamps[it.cursor],
	}
}

func (it *EntityIterator) Footer() Footer {
	return it.footer
}

func (it *EntityIterator) Close() error {
	return it.file.Close()
}

// ReadSnapshot reads a .snap file and returns its entities in insertion order.
func (cr *ColumnReader) ReadSnapshot(filename string) ([]engine.Entity, error) {
	it, err := cr.NewIterator(filename)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rows := make([]engine.Entity, 0, it.footer.RowCount)
	for it.Next() {
		rows = append(rows, it.Entity())
	}
	return rows, nil
}

// readAndDecompress reads a compressed block (size + data) and decompresses it.
func (cr *ColumnReader) readAndDecompress(r io.Reader) ([]byte, error) {
	// Read compressed size (uint32)
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	// Read compressed data
	compressed := make([]byte, size)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}

	return cr.decoder.DecodeAll(compressed, nil)
}

// bytesToInt64Slice converts a byte slice to []int64 (LittleEndian).
func bytesToInt64Slice(data []byte) []int64 {
	count := len(data) / 8
	result := make([]int64, count)
	for i := 0; i < count; i++ {
		result[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return result
}

// bytesToStringSlice converts a byte slice to []string.
// Format: [Len uint32][Bytes]...
func bytesToStringSlice(data []byte) []string {
	var result []string
	for len(data) >= 4 {
		length := int(binary.LittleEndian.Uint32(data))
		data = data[4:]
		if length > len(data) {
			break
		}
		result = append(result, string(data[:length]))
		data = data[length:]
	}
	return result
}
