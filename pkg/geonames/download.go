package geonames

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultDatasetURL is the GeoNames dump of cities above 15000 inhabitants.
const DefaultDatasetURL = "https://download.geonames.org/export/dump/cities15000.zip"

const downloadTimeout = 5 * time.Minute

// EnsureDataset checks if the dataset exists at path. If not, it downloads it
// from url, unpacking the .txt member when the download is a zip archive.
func EnsureDataset(ctx context.Context, path, url string, logger *zap.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if url == "" {
		url = DefaultDatasetURL
	}

	logger.Info("geonames dataset not found, downloading",
		zap.String("path", path),
		zap.String("url", url),
	)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dataset directory: %w", err)
	}
	return downloadAndExtract(ctx, url, path)
}

func downloadAndExtract(ctx context.Context, url, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "entityscan-cli")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download geonames dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	// zip needs random access, so spool to a temp file next to the target.
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".geonames-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write download: %w", err)
	}

	if !strings.HasSuffix(strings.ToLower(url), ".zip") {
		if err := tmp.Close(); err != nil {
			return err
		}
		return os.Rename(tmp.Name(), destPath)
	}

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return fmt.Errorf("failed to open zip archive: %w", err)
	}
	member := findMember(zr)
	if member == nil {
		return fmt.Errorf("no .txt dataset found in downloaded archive")
	}
	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", member.Name, err)
	}
	defer rc.Close()

	outFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if _, err := io.Copy(outFile, rc); err != nil {
		outFile.Close()
		os.Remove(destPath)
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return outFile.Close()
}
