// Package export writes each cluster of a labeled dataset as its own CSV table.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/utils"
)

const manifestFileName = "manifest.json"

// FileName returns the user-facing file name of a cluster (1-based).
func FileName(cluster int) string {
	return fmt.Sprintf("cluster_%d.csv", cluster+1)
}

// Tables serializes every cluster to CSV: that cluster's rows in original
// order with the original columns and no label column.
func Tables(l *dataset.Labeled) (map[int][]byte, error) {
	if l == nil {
		return nil, errors.New("export: no labeled dataset")
	}
	out := make(map[int][]byte, l.K)
	for _, id := range l.ClusterIDs() {
		var buf bytes.Buffer
		if err := l.Subset(l.Members(id)).WriteCSV(&buf); err != nil {
			return nil, fmt.Errorf("export cluster %d: %w", id+1, err)
		}
		out[id] = buf.Bytes()
	}
	return out, nil
}

// Entry describes one exported file.
type Entry struct {
	Cluster int    `json:"cluster" yaml:"cluster"`
	File    string `json:"file" yaml:"file"`
	Rows    int    `json:"rows" yaml:"rows"`
}

// Manifest records what a WriteDir call produced.
type Manifest struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Dataset   string    `json:"dataset" yaml:"dataset"`
	Selection []string  `json:"selection" yaml:"selection"`
	Clusters  []Entry   `json:"clusters" yaml:"clusters"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// NewManifest lists the clusters of l without writing anything.
func NewManifest(runID string, l *dataset.Labeled) *Manifest {
	m := &Manifest{RunID: runID, Dataset: l.Name, Selection: l.Selection, CreatedAt: time.Now().UTC()}
	sizes := l.Sizes()
	for _, id := range l.ClusterIDs() {
		m.Clusters = append(m.Clusters, Entry{Cluster: id + 1, File: FileName(id), Rows: sizes[id]})
	}
	return m
}

// WriteDir writes one CSV per cluster and a manifest.json into dir.
func WriteDir(dir, runID string, l *dataset.Labeled) (*Manifest, error) {
	tables, err := Tables(l)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	m := NewManifest(runID, l)
	for _, e := range m.Clusters {
		if err := utils.SafeWriteFile(filepath.Join(dir, e.File), tables[e.Cluster-1]); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.File, err)
		}
	}
	b, err := utils.PrettyJSON(m)
	if err != nil {
		return nil, err
	}
	if err := utils.SafeWriteFile(filepath.Join(dir, manifestFileName), b); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads the manifest.json of an export directory.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("manifest not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
