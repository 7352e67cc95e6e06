package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// WAL handles write-ahead logging so ingested entities survive a crash
// before the next snapshot flush.
type WAL struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// OpenWAL opens or creates a WAL file at the specified path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{
		file: f,
		path: path,
	}, nil
}

// Write records an entity to the WAL.
func (w *WAL) Write(e Entity) error {
	return w.WriteBatch([]Entity{e})
}

// WriteBatch records entities to the WAL as a single write. On failure the
// file is truncated back so that no record of the batch survives.
func (w *WAL) WriteBatch(es []Entity) error {
	// Format: [Len uint32][JSON Bytes] per entity
	var buf bytes.Buffer
	lenBuf := make([]byte, 4)
	for _, e := range es {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
		buf.Write(lenBuf)
		buf.Write(data)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	if _, err := w.file.Write(buf.Bytes()); err != nil {
		if terr := w.file.Truncate(info.Size()); terr != nil {
			return fmt.Errorf("%w (truncate failed: %v)", err, terr)
		}
		return err
	}
	return nil
}

// Sync flushes the WAL file buffers to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Reset truncates the WAL file.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	return w.file.Close()
}

// Replay reads the WAL and returns all entities.
func (w *WAL) Replay() ([]Entity, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var rows []Entity
	lenBuf := make([]byte, 4)
	for {
		_, err := io.ReadFull(w.file, lenBuf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("WAL replay error (len): %w", err)
		}

		length := binary.LittleEndian.Uint32(lenBuf)
		data := make([]byte, length)
		if _, err := io.ReadFull(w.file, data); err != nil {
			return rows, fmt.Errorf("WAL replay error (data): %w", err)
		}

		var row Entity
		if err := json.Unmarshal(data, &row); err != nil {
			return rows, fmt.Errorf("WAL replay error (unmarshal): %w", err)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
