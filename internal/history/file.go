package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// lockStripes bounds the number of mutexes a FileStore holds. Rooms that
// share a stripe serialize their appends.
const lockStripes = 64

// FileStore appends each room's lines to <dir>/<roomID>.txt.
type FileStore struct {
	dir   string
	locks [lockStripes]sync.Mutex
}

// NewFileStore creates dir if needed and returns a store writing into it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the history file for roomID.
func (s *FileStore) Path(roomID int) string {
	return filepath.Join(s.dir, strconv.Itoa(roomID)+".txt")
}

// Append writes line plus a newline to the room's file. Writers to the same
// room are serialized.
func (s *FileStore) Append(ctx context.Context, roomID int, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(s.Path(roomID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history for room %d: %w", roomID, err)
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("append history for room %d: %w", roomID, err)
	}
	return f.Close()
}

// Close is a no-op; files are closed after every append.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) roomLock(roomID int) *sync.Mutex {
	return &s.locks[uint(roomID)%lockStripes]
}
