package encpkg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/encpkg/newc"
)

// ExtractArchive walks the plain newc archive at archivePath and
// materializes each entry as a file under root, creating parent
// directories as needed. The walk stops at the archive trailer.
//
// Entry data is read through a fresh positioned handle per entry rather
// than the sequential walk handle; reopening is avoidable overhead, but it
// keeps the walk cursor and the data reads independent. Modes, ownership,
// and non-regular entry types are not applied; this extractor handles
// regular files only.
func (inst *Installer) ExtractArchive(archivePath, root string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	r := newc.NewReader(bufio.NewReader(f))
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walk archive: %w", err)
		}

		name := cleanEntryName(entry.Name)
		if name == "" {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("entry %q escapes install root", entry.Name)
		}
		dst := filepath.Join(root, name)

		inst.log().Info("extracting entry", "name", name, "size", entry.Size)

		if dir := filepath.Dir(dst); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create parent directories for %s: %w", name, err)
			}
		}
		if err := inst.extractEntry(archivePath, entry, dst); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
	}
}

// extractEntry copies exactly entry.Size bytes from the entry's data
// offset to dst. Zero-size entries still get their file created.
func (inst *Installer) extractEntry(archivePath string, entry *newc.Entry, dst string) error {
	dstf, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstf.Close()

	if entry.Size == 0 {
		return nil
	}

	src, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := src.Seek(entry.DataOffset, io.SeekStart); err != nil {
		return err
	}

	copied, err := io.CopyN(dstf, src, entry.Size)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("copied %d of %d bytes: %w", copied, entry.Size, ErrLengthMismatch)
	}
	if err != nil {
		return fmt.Errorf("copy %d bytes at offset %d: %w", entry.Size, entry.DataOffset, err)
	}
	return nil
}

// cleanEntryName strips the leading "./" or "/" conventionally present in
// archive member names.
func cleanEntryName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	return strings.TrimSuffix(name, "/")
}
