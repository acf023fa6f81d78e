package service

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
)

// buildFolderArchive flattens dir into a single tar.gz source file under the OS temp directory,
// named "<session_id>-<base>.tar.gz". The caller owns deleting it (send_files does so once the
// outgoing worker finishes, success or failure).
func buildFolderArchive(sessionID, dir string) (path string, sizeBytes int64, err error) {
	base := filepath.Base(filepath.Clean(dir))
	path = filepath.Join(os.TempDir(), sessionID+"-"+base+".tar.gz")

	out, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer out.Close()

	gz, err := pgzip.NewWriterLevel(out, pgzip.DefaultCompression)
	if err != nil {
		return "", 0, err
	}
	tw := tar.NewWriter(gz)

	walkErr := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}
		header, hdrErr := tar.FileInfoHeader(info, "")
		if hdrErr != nil {
			return hdrErr
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, err := io.Copy(tw, f)
		return err
	})
	if walkErr != nil {
		tw.Close()
		gz.Close()
		os.Remove(path)
		return "", 0, walkErr
	}
	if err := tw.Close(); err != nil {
		os.Remove(path)
		return "", 0, err
	}
	if err := gz.Close(); err != nil {
		os.Remove(path)
		return "", 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return path, info.Size(), nil
}
