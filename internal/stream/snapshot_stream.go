package stream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/justin4957/fleetwatch/internal/parser"
	"github.com/justin4957/fleetwatch/pkg/models"
	"github.com/rs/zerolog"
)

// SnapshotStream re-reads the fleet snapshot file whenever it changes
type SnapshotStream struct {
	path         string
	parser       parser.SnapshotParser
	pollInterval time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	lastMod time.Time
	lastLen int64
}

// NewSnapshotStream creates a stream over the snapshot at path.
// An empty format is detected from the file extension.
func NewSnapshotStream(path, format string, pollInterval time.Duration, logger zerolog.Logger) *SnapshotStream {
	if format == "" {
		format = parser.DetectFormat(path)
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &SnapshotStream{
		path:         path,
		parser:       parser.NewParser(format),
		pollInterval: pollInterval,
		logger:       logger.With().Str("component", "snapshot_stream").Str("path", path).Logger(),
	}
}

// Start emits the current snapshot, then one snapshot per detected change,
// until ctx is cancelled. It returns an error only if the watcher cannot start.
func (s *SnapshotStream) Start(ctx context.Context, output chan<- *models.FleetSnapshot) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors and atomic renames that replace the file are seen
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	s.logger.Info().Msg("watching fleet snapshot")
	s.emitIfChanged(ctx, output)

	// Periodic check for changes (fallback if fsnotify misses events)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				s.emitIfChanged(ctx, output)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("watcher error")

		case <-ticker.C:
			s.emitIfChanged(ctx, output)
		}
	}
}

// emitIfChanged reads the file when its modification time or size moved
func (s *SnapshotStream) emitIfChanged(ctx context.Context, output chan<- *models.FleetSnapshot) {
	info, err := os.Stat(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Msg("failed to stat snapshot")
		}
		return
	}

	s.mu.Lock()
	unchanged := info.ModTime().Equal(s.lastMod) && info.Size() == s.lastLen
	s.mu.Unlock()
	if unchanged {
		return
	}

	snapshot, err := s.Read()
	if err != nil {
		s.logger.Warn().Err(err).Msg("skipping unreadable snapshot")
		return
	}

	s.mu.Lock()
	s.lastMod = info.ModTime()
	s.lastLen = info.Size()
	s.mu.Unlock()

	select {
	case output <- snapshot:
		s.logger.Debug().Int("vehicles", len(snapshot.Vehicles)).Msg("snapshot loaded")
	case <-ctx.Done():
	}
}

// Read parses the snapshot file once
func (s *SnapshotStream) Read() (*models.FleetSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return s.parser.Parse(data)
}
