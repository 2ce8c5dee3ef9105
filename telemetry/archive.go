package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

const episodeSchema = "episode_v1"

// EpisodeArchive streams episode records into a zstd-compressed parquet
// file. Rows go to a temp file, one row group per Write, which Close renames
// into place. An archive that received no rows leaves no file.
type EpisodeArchive struct {
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[EpisodeRecord]
	rows   int
}

// CreateEpisodeArchive opens an archive that will be published at outPath.
func CreateEpisodeArchive(outPath string) (*EpisodeArchive, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := outPath + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}
	w := parquet.NewGenericWriter[EpisodeRecord](f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", episodeSchema)

	return &EpisodeArchive{tmpPath: tmpPath, outPath: outPath, file: f, writer: w}, nil
}

// Rows returns how many rows have been written.
func (a *EpisodeArchive) Rows() int { return a.rows }

// Write appends recs and flushes them as a row group.
func (a *EpisodeArchive) Write(recs []EpisodeRecord) error {
	if a.writer == nil {
		return fmt.Errorf("episode archive is closed")
	}
	if len(recs) == 0 {
		return nil
	}
	if _, err := a.writer.Write(recs); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("flush parquet: %w", err)
	}
	a.rows += len(recs)
	return nil
}

// Close finishes the file and renames it into place.
func (a *EpisodeArchive) Close() error {
	if a.writer == nil {
		return nil
	}
	closeErr := a.writer.Close()
	a.writer = nil
	fileErr := a.file.Close()
	if closeErr != nil {
		return fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close parquet file: %w", fileErr)
	}

	if a.rows == 0 {
		return os.Remove(a.tmpPath)
	}
	if err := os.Rename(a.tmpPath, a.outPath); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// WriteEpisodeArchive writes rows to a new archive at outPath.
func WriteEpisodeArchive(outPath string, rows []EpisodeRecord) error {
	a, err := CreateEpisodeArchive(outPath)
	if err != nil {
		return err
	}
	return errors.Join(a.Write(rows), a.Close())
}

// ReadEpisodeArchive loads every row of an episode archive.
func ReadEpisodeArchive(path string) ([]EpisodeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	if v, ok := pf.Lookup("schema"); ok && v != episodeSchema {
		return nil, fmt.Errorf("unexpected archive schema %q", v)
	}

	reader := parquet.NewGenericReader[EpisodeRecord](pf)
	defer reader.Close()

	rows := make([]EpisodeRecord, reader.NumRows())
	n, err := reader.Read(rows)
	if n == len(rows) {
		return rows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows[:n], nil
}
