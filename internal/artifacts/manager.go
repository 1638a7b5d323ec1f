// Package artifacts stores the diagnostics of finished sessions, device
// logs and fallback screenshots, as tar.gz archives.
package artifacts

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// LogsFile is the archive entry holding the device log.
const LogsFile = "logs.txt"

// Manager handles artifact persistence
type Manager struct {
	artifacts sync.Map // artifactID -> *models.Artifact
	storePath string
	now       func() time.Time
}

// NewManager creates a new artifact manager
func NewManager(storePath string) (*Manager, error) {
	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Manager{
		storePath: storePath,
		now:       time.Now,
	}, nil
}

// Save archives everything rec collected for a device session
func (m *Manager) Save(deviceSessionID string, rec *Recorder) (*models.Artifact, error) {
	lines, screenshots := rec.snapshot()

	artifact := &models.Artifact{
		ID:              uuid.New().String(),
		DeviceSessionID: deviceSessionID,
		CreatedAt:       m.now(),
		LogLines:        len(lines),
		Screenshots:     len(screenshots),
	}
	archivePath := filepath.Join(m.storePath, fmt.Sprintf("%s.tar.gz", artifact.ID))

	entries := map[string][]byte{
		LogsFile: []byte(strings.Join(lines, "\n")),
	}
	for i, frame := range screenshots {
		entries[fmt.Sprintf("screenshot-%d.bin", i)] = frame
	}

	if err := m.compress(entries, archivePath, artifact.CreatedAt); err != nil {
		os.Remove(archivePath)
		return nil, fmt.Errorf("failed to write artifact archive: %w", err)
	}

	artifact.DataPath = archivePath
	m.artifacts.Store(artifact.ID, artifact)

	return artifact, nil
}

// GetArtifact retrieves an artifact by ID
func (m *Manager) GetArtifact(id string) (*models.Artifact, error) {
	value, ok := m.artifacts.Load(id)
	if !ok {
		return nil, fmt.Errorf("artifact not found")
	}
	return value.(*models.Artifact), nil
}

// ListArtifacts returns every artifact, newest first, optionally for one
// device session
func (m *Manager) ListArtifacts(deviceSessionID string) []*models.Artifact {
	var list []*models.Artifact
	m.artifacts.Range(func(_, value any) bool {
		a := value.(*models.Artifact)
		if deviceSessionID == "" || a.DeviceSessionID == deviceSessionID {
			list = append(list, a)
		}
		return true
	})
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

// DeleteArtifact removes an artifact and its archive
func (m *Manager) DeleteArtifact(id string) error {
	artifact, err := m.GetArtifact(id)
	if err != nil {
		return err
	}

	if artifact.DataPath != "" {
		if err := os.Remove(artifact.DataPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete artifact data: %w", err)
		}
	}

	m.artifacts.Delete(id)

	return nil
}

// OpenArchive opens the stored tar.gz of an artifact
func (m *Manager) OpenArchive(id string) (io.ReadCloser, error) {
	artifact, err := m.GetArtifact(id)
	if err != nil {
		return nil, err
	}
	return os.Open(artifact.DataPath)
}

// ReadEntries extracts every entry of an artifact archive
func (m *Manager) ReadEntries(id string) (map[string][]byte, error) {
	artifact, err := m.GetArtifact(id)
	if err != nil {
		return nil, err
	}
	return m.extract(artifact.DataPath)
}

// compress writes entries into a tar.gz archive
func (m *Manager) compress(entries map[string][]byte, target string, modTime time.Time) error {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	tarWriter := tar.NewWriter(gzWriter)

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := entries[name]
		header := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		if _, err := tarWriter.Write(data); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// extract reads a tar.gz archive into memory
func (m *Manager) extract(source string) (map[string][]byte, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	entries := make(map[string][]byte)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tarReader); err != nil {
			return nil, err
		}
		entries[header.Name] = buf.Bytes()
	}

	return entries, nil
}
