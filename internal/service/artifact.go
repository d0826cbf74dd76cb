package service

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/timmy/appforge/internal/logger"
	"github.com/timmy/appforge/internal/storage"
)

// ArtifactService archives a finished project tree into object storage so it
// outlives the local workspace. Purely additive: archive failures never
// change a job's outcome.
type ArtifactService struct {
	storage storage.ObjectStorage
}

// NewArtifactService creates the archiver. A nil storage disables it.
func NewArtifactService(store storage.ObjectStorage) *ArtifactService {
	return &ArtifactService{storage: store}
}

// Enabled reports whether an object storage backend is configured.
func (s *ArtifactService) Enabled() bool {
	return s != nil && s.storage != nil
}

// Archive zips outputDir (skipping dependency caches and VCS state) and
// uploads it under <jobID>.zip. Returns the object URL.
func (s *ArtifactService) Archive(ctx context.Context, outputDir, jobID string) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	var buf bytes.Buffer
	if err := zipTree(&buf, outputDir); err != nil {
		return "", fmt.Errorf("archiving %s: %w", outputDir, err)
	}

	key := jobID + ".zip"
	if err := s.storage.Upload(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "application/zip"); err != nil {
		return "", err
	}

	url := s.storage.GetURL(key)
	logger.With(logger.Fields{"size": buf.Len()}).Info(ctx, "Archived project to %s", url)
	return url, nil
}

// zipTree writes a zip of root into w, with paths relative to root.
func zipTree(w io.Writer, root string) error {
	zw := zip.NewWriter(w)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			switch info.Name() {
			case "node_modules", ".git", ".vercel", ".next", "dist":
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		f, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(f, src)
		src.Close()
		return copyErr
	})
	if err != nil {
		zw.Close()
		return err
	}

	return zw.Close()
}
