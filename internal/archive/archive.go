package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// ErrInvalid marks a corrupt container or an entry that tries to escape
// the extraction directory. Nothing is written once it is detected.
var ErrInvalid = errors.New("invalid archive")

// Pack walks srcDir and writes every regular file into a zip container at
// dstPath, preserving slash-separated relative paths. Returns the archive
// size in bytes. WalkDir visits entries in lexical order, so packing the
// same tree twice yields the same entry order.
func Pack(srcDir, dstPath string) (int64, error) {
	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	if err := PackTo(out, srcDir); err != nil {
		out.Close()
		os.Remove(dstPath)
		return 0, err
	}
	if err := out.Close(); err != nil {
		os.Remove(dstPath)
		return 0, err
	}
	info, err := os.Stat(dstPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// PackTo writes the zip container for srcDir to w.
func PackTo(w io.Writer, srcDir string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header := &zip.FileHeader{Name: filepath.ToSlash(rel), Method: zip.Deflate}
		if info, infoErr := d.Info(); infoErr == nil {
			header.Modified = info.ModTime()
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(entry, file)
		return err
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("pack %s: %w", srcDir, err)
	}
	return zw.Close()
}

// Unpack extracts the zip container at srcPath into dstDir. Every entry
// path is validated against dstDir before anything is written; a single
// traversal attempt or an unreadable container fails the whole call with
// ErrInvalid and leaves dstDir untouched outside of already-valid entries
// written before the offending one was seen. Validation happens up front,
// so in practice nothing is written from a hostile archive.
func Unpack(srcPath, dstDir string) error {
	zr, err := zip.OpenReader(srcPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	defer zr.Close()
	return extract(&zr.Reader, dstDir)
}

// UnpackReader extracts a zip container supplied as a ReaderAt, for
// archives fetched from a remote backend without touching disk first.
func UnpackReader(r io.ReaderAt, size int64, dstDir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return extract(zr, dstDir)
}

func extract(zr *zip.Reader, dstDir string) error {
	// Validate every entry before the first write.
	targets := make([]string, len(zr.File))
	for i, f := range zr.File {
		target, err := safeTarget(dstDir, f.Name)
		if err != nil {
			return err
		}
		targets[i] = target
	}

	for i, f := range zr.File {
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targets[i], 0o750); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o750); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		dst, err := os.OpenFile(targets[i], os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			src.Close()
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			src.Close()
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if err := dst.Close(); err != nil {
			src.Close()
			return err
		}
		src.Close()
	}
	return nil
}

// safeTarget resolves an entry name inside dstDir and rejects absolute
// paths and anything that would land outside dstDir.
func safeTarget(dstDir, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: illegal entry path %q", ErrInvalid, name)
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry path escapes destination: %q", ErrInvalid, name)
	}
	return filepath.Join(dstDir, cleaned), nil
}
