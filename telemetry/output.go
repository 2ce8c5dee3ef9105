package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/smartnav/config"
)

// csvStream appends records to one CSV file, writing the header once.
type csvStream[T any] struct {
	name          string
	file          *os.File
	headerWritten bool
}

func openStream[T any](dir, name string) (*csvStream[T], error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvStream[T]{name: name, file: f}, nil
}

func (s *csvStream[T]) write(records []T) error {
	if len(records) == 0 {
		return nil
	}
	if !s.headerWritten {
		if err := gocsv.Marshal(records, s.file); err != nil {
			return fmt.Errorf("writing %s: %w", s.name, err)
		}
		s.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, s.file); err != nil {
		return fmt.Errorf("writing %s: %w", s.name, err)
	}
	return nil
}

func (s *csvStream[T]) close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// OutputManager handles structured experiment output with CSV logging.
type OutputManager struct {
	dir       string
	telemetry *csvStream[WindowStats]
	episodes  *csvStream[EpisodeRecord]
	perf      *csvStream[PerfStatsCSV]
	bookmarks *csvStream[Bookmark]
	archive   *EpisodeArchive
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.telemetry, err = openStream[WindowStats](dir, "telemetry.csv"); err != nil {
		return nil, err
	}
	if om.episodes, err = openStream[EpisodeRecord](dir, "episodes.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.perf, err = openStream[PerfStatsCSV](dir, "perf.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.bookmarks, err = openStream[Bookmark](dir, "bookmarks.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.archive, err = CreateEpisodeArchive(filepath.Join(dir, "episodes.parquet")); err != nil {
		om.Close()
		return nil, err
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.write([]WindowStats{stats})
}

// WriteEpisodes appends finished episodes to episodes.csv and the
// episodes.parquet archive.
func (om *OutputManager) WriteEpisodes(recs []EpisodeRecord) error {
	if om == nil {
		return nil
	}
	return errors.Join(om.episodes.write(recs), om.archive.Write(recs))
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarks.write([]Bookmark{b})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var errs []error
	for _, c := range []func() error{om.telemetry.close, om.episodes.close, om.perf.close, om.bookmarks.close} {
		errs = append(errs, c())
	}
	if om.archive != nil {
		errs = append(errs, om.archive.Close())
	}
	return errors.Join(errs...)
}
