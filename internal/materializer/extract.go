package materializer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	maxEntryBytes       = 512 * 1024 * 1024 // 512MB per entry (§4.C)
	defaultTotalCeiling = 2 * 1024 * 1024 * 1024 // 2GB per task (§4.C default)
)

// extractionBudget tracks the total uncompressed bytes written for one
// Task's extraction, across all its artifacts, so the per-task ceiling can
// span multiple calls.
type extractionBudget struct {
	ceiling int64
	written int64
}

func newExtractionBudget(ceiling int64) *extractionBudget {
	if ceiling <= 0 {
		ceiling = defaultTotalCeiling
	}
	return &extractionBudget{ceiling: ceiling}
}

func (b *extractionBudget) reserve(n int64) error {
	if b.written+n > b.ceiling {
		return fmt.Errorf("extraction would exceed total size ceiling of %d bytes", b.ceiling)
	}
	b.written += n
	return nil
}

// ExtractInto writes payload into destDir, auto-detecting zip/gzip/tar or
// writing it as a plain file when it is none of those. Every archive entry
// is validated against path traversal and the size ceilings in §4.C before
// any bytes touch disk.
func ExtractInto(payload []byte, destDir string, budget *extractionBudget) error {
	if isZip(payload) {
		return extractZip(payload, destDir, budget)
	}
	if isGzip(payload) {
		decompressed, err := gunzip(payload)
		if err != nil {
			return fmt.Errorf("gunzip: %w", err)
		}
		if isTar(decompressed) {
			return extractTar(decompressed, destDir, budget)
		}
		return writePlainFile(destDir, "decompressed.log", decompressed, budget)
	}
	if isTar(payload) {
		return extractTar(payload, destDir, budget)
	}
	return writePlainFile(destDir, "payload.log", payload, budget)
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 0x03 && b[3] == 0x04
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func isTar(b []byte) bool {
	if len(b) < 262 {
		return false
	}
	return string(b[257:262]) == "ustar"
}

func gunzip(b []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// safeJoin joins destDir with a relative entry path, rejecting any entry
// that would escape the workspace root (§4.C, Testable Property 10).
func safeJoin(destDir, entryName string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(destDir, entryName))
	if !strings.HasPrefix(cleaned, filepath.Clean(destDir)+string(os.PathSeparator)) && cleaned != filepath.Clean(destDir) {
		return "", fmt.Errorf("archive entry %q escapes workspace root", entryName)
	}
	return cleaned, nil
}

func extractZip(payload []byte, destDir string, budget *extractionBudget) error {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target, err := safeJoin(destDir, f.Name)
		if err != nil {
			return err
		}
		if int64(f.UncompressedSize64) > maxEntryBytes {
			return fmt.Errorf("zip entry %s exceeds per-entry size limit", f.Name)
		}
		if err := budget.reserve(int64(f.UncompressedSize64)); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		if err := writeEntry(target, rc); err != nil {
			rc.Close()
			return err
		}
		rc.Close()
	}
	return nil
}

func extractTar(payload []byte, destDir string, budget *extractionBudget) error {
	tr := tar.NewReader(bytes.NewReader(payload))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return err
		}
		if hdr.Size > maxEntryBytes {
			return fmt.Errorf("tar entry %s exceeds per-entry size limit", hdr.Name)
		}
		if err := budget.reserve(hdr.Size); err != nil {
			return err
		}
		if err := writeEntry(target, io.LimitReader(tr, hdr.Size)); err != nil {
			return err
		}
	}
}

func writePlainFile(destDir, name string, data []byte, budget *extractionBudget) error {
	if int64(len(data)) > maxEntryBytes {
		return fmt.Errorf("payload exceeds per-entry size limit")
	}
	if err := budget.reserve(int64(len(data))); err != nil {
		return err
	}
	target, err := safeJoin(destDir, name)
	if err != nil {
		return err
	}
	return writeEntry(target, bytes.NewReader(data))
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", target, err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("write file %s: %w", target, err)
	}
	return nil
}
