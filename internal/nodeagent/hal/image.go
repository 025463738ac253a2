package hal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
	"github.com/autopeer-io/nodeagent/pkg/log"
)

const (
	fileStaged   = "firmware.bin.staged"
	fileImage    = "firmware.bin"
	fileIdentity = "current_version.json"
)

var errNotStaging = errors.New("no image is being staged")

// stagingFile is the part of *os.File the store writes through.
type stagingFile interface {
	io.WriteSeeker
	Truncate(size int64) error
	Sync() error
	Close() error
	Name() string
}

// ImageStore stages firmware images in a state directory. A staged image only
// replaces the committed one on Finalize, by rename.
type ImageStore struct {
	dir     string
	factory core.FirmwareIdentity

	mu      sync.Mutex
	staged  stagingFile
	size    int64
	written int64
}

// NewImageStore opens dir, creating it if needed. factory is reported until an
// image has been committed.
func NewImageStore(dir string, factory core.FirmwareIdentity) (*ImageStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "cpeer-node-agent")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &ImageStore{dir: dir, factory: factory}, nil
}

// FirmwareIdentity returns the last committed identity, or the factory one.
func (s *ImageStore) FirmwareIdentity() core.FirmwareIdentity {
	data, err := os.ReadFile(filepath.Join(s.dir, fileIdentity))
	if err != nil {
		return s.factory
	}

	var id core.FirmwareIdentity
	if err := json.Unmarshal(data, &id); err != nil || !id.Valid() {
		log.Warn("Ignoring corrupt firmware identity file", "dir", s.dir)
		return s.factory
	}
	return id
}

func (s *ImageStore) Begin(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discard()

	f, err := os.Create(filepath.Join(s.dir, fileStaged))
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	s.staged = f
	s.size = size
	s.written = 0
	return nil
}

func (s *ImageStore) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged == nil {
		return errNotStaging
	}
	if s.written+int64(len(p)) > s.size {
		return fmt.Errorf("image exceeds announced size %d", s.size)
	}
	if _, err := s.staged.Write(p); err != nil {
		// Drop the partial packet so a retry lands at the same offset.
		if rerr := s.rewind(); rerr != nil {
			log.Warn("Failed to rewind staged image, discarding it", "err", rerr)
			s.discard()
		}
		return fmt.Errorf("write staged image: %w", err)
	}
	s.written += int64(len(p))
	return nil
}

func (s *ImageStore) rewind() error {
	if err := s.staged.Truncate(s.written); err != nil {
		return err
	}
	_, err := s.staged.Seek(s.written, io.SeekStart)
	return err
}

func (s *ImageStore) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discard()
}

// Finalize commits the staged image and records id as the running firmware.
// A staged image that cannot be committed is discarded.
func (s *ImageStore) Finalize(id core.FirmwareIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.staged == nil {
		return errNotStaging
	}
	if err := s.commit(); err != nil {
		s.discard()
		return err
	}

	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	tmp := filepath.Join(s.dir, fileIdentity+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, fileIdentity))
}

func (s *ImageStore) commit() error {
	if s.written != s.size {
		return fmt.Errorf("image incomplete: %d of %d bytes", s.written, s.size)
	}
	if err := s.staged.Sync(); err != nil {
		return err
	}
	if err := s.staged.Close(); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(s.dir, fileStaged), filepath.Join(s.dir, fileImage)); err != nil {
		return fmt.Errorf("commit image: %w", err)
	}
	s.staged = nil
	return nil
}

// ImagePath is the location of the committed image.
func (s *ImageStore) ImagePath() string {
	return filepath.Join(s.dir, fileImage)
}

func (s *ImageStore) discard() {
	if s.staged == nil {
		return
	}
	_ = s.staged.Close()
	_ = os.Remove(s.staged.Name())
	s.staged = nil
}
