// Command encpkg-install decodes an encpkg container into a plain archive
// and extracts it under an install root, using btrfs encoded writes for
// frame-addressable payloads. When ./keys/signing.key.pub holds an ed25519
// public key, the container signature is verified before any payload byte
// is trusted.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/encpkg"
	"github.com/meigma/encpkg/pkgfile"
)

const verifyKeyPath = "keys/signing.key.pub"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s package-path archive-output install-root\n",
		filepath.Base(os.Args[0]))
}

func main() {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) != 4 {
		usage()
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2], os.Args[3]); err != nil {
		slog.Error("install failed", "error", err)
		os.Exit(1)
	}
}

func run(pkgPath, archivePath, installRoot string) error {
	pkg, err := pkgfile.Open(pkgPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(verifyKeyPath); err == nil {
		pub, err := pkgfile.LoadVerifyKey(verifyKeyPath)
		if err != nil {
			return err
		}
		if err := pkg.Verify(pub); err != nil {
			return err
		}
		slog.Info("signature verified", "package", pkgPath)
	} else {
		slog.Warn("no verify key, skipping signature verification", "path", verifyKeyPath)
	}

	inst := encpkg.NewInstaller(encpkg.WithLogger(slog.Default()))
	if err := inst.Install(pkg, archivePath, installRoot); err != nil {
		return err
	}
	slog.Info("install complete", "root", installRoot)
	return nil
}
