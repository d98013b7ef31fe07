// Command encpkg-build packs the contents of ./payload into an encpkg
// container, compressed as frame-bounded zstd with data-aligned archive
// entries. When ./keys/signing.key holds an ed25519 private key, the
// container is signed with it.
package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/meigma/encpkg/compress"
	"github.com/meigma/encpkg/pkgfile"
)

const (
	payloadDir     = "payload"
	signingKeyPath = "keys/signing.key"

	pkgName    = "encpkg-payload"
	pkgVersion = "1.0"

	// zstd level 15: install-time decode speed matters, build time does not.
	compressionLevel = 15
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s output-package\n", filepath.Base(os.Args[0]))
}

func main() {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) != 2 {
		usage()
		os.Exit(2)
	}
	if err := run(os.Args[1]); err != nil {
		slog.Error("build failed", "error", err)
		os.Exit(1)
	}
}

func run(outPath string) error {
	opts := []pkgfile.BuildOption{
		pkgfile.WithCompression(compress.CompressionWithLevel{
			Type:  compress.CompressionZstd,
			Level: compressionLevel,
		}),
		pkgfile.WithLogger(slog.Default()),
	}

	if _, err := os.Stat(signingKeyPath); err == nil {
		key, err := pkgfile.LoadSigningKey(signingKeyPath)
		if err != nil {
			return err
		}
		opts = append(opts, pkgfile.WithSigningKey(key))
	} else {
		slog.Warn("no signing key, building unsigned container", "path", signingKeyPath)
	}

	b := pkgfile.NewBuilder(pkgName, pkgVersion, opts...).
		Arch("x86_64").
		Summary("payload packed with aligned cpio and size-capped zstd frames").
		BuildTime(time.Now())

	root := os.DirFS(payloadDir)
	err := fs.WalkDir(root, ".", func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := fs.ReadFile(root, p)
		if err != nil {
			return err
		}
		b.AddFile("./"+p, data, info.Mode().Perm(), info.ModTime())
		return nil
	})
	if err != nil {
		return fmt.Errorf("collect %s: %w", payloadDir, err)
	}

	if err := b.WriteFile(outPath); err != nil {
		return err
	}
	slog.Info("container written", "path", outPath)
	return nil
}
