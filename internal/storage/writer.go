package storage

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/coffersTech/odsearch/internal/engine"
	"github.com/klauspost/compress/zstd"
)

// Snapshot Header
var MagicHeader = []byte("ODSNAP01")

type ColumnWriter struct {
	encoder *zstd.Encoder
}

func NewColumnWriter() (*ColumnWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnWriter{encoder: enc}, nil
}

// WriteSnapshot writes the MemTable to a .snap file.
//
// Layout: header, then one zstd block per column (created_at, id, name,
// description, category), then the footer (row count, min and max created_at).
// The file is built under a .tmp name and renamed into place, so a failed
// write never leaves a partial snapshot behind.
func (cw *ColumnWriter) WriteSnapshot(filename string, mt *engine.MemTable) (err error) {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err = cw.writeSnapshot(f, mt); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

func (cw *ColumnWriter) writeSnapshot(f *os.File, mt *engine.MemTable) error {
	rows := mt.Rows()

	// 1. Write Header
	if _, err := f.Write(MagicHeader); err != nil {
		return err
	}

	rowCount := uint32(len(rows))
	if rowCount == 0 {
		return cw.writeFooter(f, 0, 0, 0)
	}

	// 2. Prepare Data
	tsData := make([]int64, len(rows))
	idData := make([]string, len(rows))
	nameData := make([]string, len(rows))
	descData := make([]string, len(rows))
	catData := make([]string, len(rows))
	for i, r := range rows {
		tsData[i] = r.CreatedAt
		idData[i] = r.ID
		nameData[i] = r.Name
		descData[i] = r.Description
		catData[i] = r.Category
	}
	minTs, maxTs := mt.TimeRange()

	// 3. Compress and Write Columns
	if err := cw.writeInt64Col(f, tsData); err != nil {
		return err
	}
	for _, col := range [][]string{idData, nameData, descData, catData} {
		if err := cw.writeStringCol(f, col); err != nil {
			return err
		}
	}

	// 4. Footer
	return cw.writeFooter(f, rowCount, minTs, maxTs)
}

func (cw *ColumnWriter) writeInt64Col(f *os.File, data []int64) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, data); err != nil {
		return err
	}
	return cw.compressAndWrite(f, buf.Bytes())
}

func (cw *ColumnWriter) writeStringCol(f *os.File, data []string) error {
	buf := new(bytes.Buffer)
	// Serialize: [Len uint32][Bytes]...
	lenBuf := make([]byte, 4)
	for _, s := range data {
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
		buf.Write(lenBuf)
		buf.WriteString(s)
	}
	return cw.compressAndWrite(f, buf.Bytes())
}

func (cw *ColumnWriter) compressAndWrite(f *os.File, raw []byte) error {
	compressed := cw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	// Write Compressed Size (uint32)
	size := uint32(len(compressed))
	if err := binary.Write(f, binary.LittleEndian, size); err != nil {
		return err
	}

	// Write Data
	_, err := f.Write(compressed)
	return err
}

func (cw *ColumnWriter) writeFooter(f *os.File, rowCount uint32, minTs, maxTs int64) error {
	// RowCount (4) + MinTs (8) + MaxTs (8)
	if err := binary.Write(f, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, minTs); err != nil {
		return err
	}
	return binary.Write(f, binary.LittleEndian, maxTs)
}
