package output

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Archive упаковывает все обычные файлы srcDir в zip-архив dest (deflate).
//
// Имена записей — пути относительно srcDir с разделителем '/'.
// Существующий dest перезаписывается. Возвращает dest.
func Archive(srcDir, dest string) (string, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("archive %s: not a directory", srcDir)
	}

	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}

	zw := zip.NewWriter(f)

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		// Архив внутри исходного каталога в себя не пакуем
		if same, _ := sameFile(path, dest); same {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})

	closeErr := zw.Close()
	if err := f.Close(); err != nil && closeErr == nil {
		closeErr = err
	}

	if walkErr != nil {
		os.Remove(dest)
		return "", fmt.Errorf("archive %s: %w", srcDir, walkErr)
	}
	if closeErr != nil {
		os.Remove(dest)
		return "", fmt.Errorf("finalize archive: %w", closeErr)
	}
	return dest, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func sameFile(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return os.SameFile(fa, fb), nil
}
