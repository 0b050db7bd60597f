package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"calmchat/internal/models"
	"calmchat/internal/util"
)

const (
	pagesFile  = "pages.json"
	chunksFile = "chunks.jsonl"
)

// DocumentDir is where artifacts for filename are written under root.
func DocumentDir(root, filename string) string {
	return util.SafeJoin(filepath.Join(root, "documents"), filename)
}

func ChunksPath(root, filename string) string {
	return filepath.Join(DocumentDir(root, filename), chunksFile)
}

func WriteArtifacts(root string, doc models.Document, chunks []models.Chunk) error {
	dir := DocumentDir(root, doc.Filename)
	if err := util.WriteJSONAtomic(filepath.Join(dir, pagesFile), doc); err != nil {
		return err
	}
	return WriteChunks(filepath.Join(dir, chunksFile), chunks)
}

func WriteChunks(path string, chunks []models.Chunk) error {
	return util.WriteJSONLinesAtomic(path, chunks)
}

func ReadChunks(path string) ([]models.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunks: %w", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := make([]models.Chunk, 0)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c models.Chunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("decode chunk line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read chunks: %w", err)
	}
	return out, nil
}
