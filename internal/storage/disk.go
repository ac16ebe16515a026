package storage

import (
	"fmt"
	"os"
)

// Footprint is the on-disk size of the persisted knowledge base and history.
type Footprint struct {
	IndexBytes    int64 `json:"index_bytes"`
	MetadataBytes int64 `json:"metadata_bytes"`
	HistoryBytes  int64 `json:"history_bytes"`
}

// Total returns the combined size.
func (f Footprint) Total() int64 {
	return f.IndexBytes + f.MetadataBytes + f.HistoryBytes
}

// sqliteSideFiles are written next to a SQLite database in WAL mode.
var sqliteSideFiles = []string{"-wal", "-shm"}

// MeasureFootprint stats the index, metadata and history files. The history
// size includes the SQLite WAL and shared-memory files. Missing files and empty
// paths count as zero.
func MeasureFootprint(indexPath, metadataPath, historyPath string) (Footprint, error) {
	var f Footprint
	var err error
	if f.IndexBytes, err = fileSize(indexPath); err != nil {
		return Footprint{}, err
	}
	if f.MetadataBytes, err = fileSize(metadataPath); err != nil {
		return Footprint{}, err
	}
	if historyPath == "" {
		return f, nil
	}
	for _, suffix := range append([]string{""}, sqliteSideFiles...) {
		n, err := fileSize(historyPath + suffix)
		if err != nil {
			return Footprint{}, err
		}
		f.HistoryBytes += n
	}
	return f, nil
}

func fileSize(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}
