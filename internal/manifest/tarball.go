package manifest

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"

	"htcimaging/internal/fileutil"
)

// writeTarball packs files (recursively) into path. It reports true when the
// tarball already existed and force was not set.
func writeTarball(ctx context.Context, path string, files []string, size uint64, force bool, progress io.Writer) (bool, error) {
	exists, err := fileutil.Exists(path)
	if err != nil {
		return false, fmt.Errorf("stat tarball: %w", err)
	}
	if exists && !force {
		return true, nil
	}

	tmp := path + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("create tarball: %w", err)
	}
	defer func() {
		_ = out.Close()
		_ = os.Remove(tmp)
	}()

	var counter io.Writer = io.Discard
	if progress != nil {
		bar := progressbar.NewOptions64(int64(size),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetDescription(filepath.Base(path)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish() //nolint:errcheck
		counter = barWriter{bar: bar}
	}

	tw := tar.NewWriter(out)
	for _, f := range files {
		if err := addToTar(ctx, tw, f, counter); err != nil {
			return false, err
		}
	}
	if err := tw.Close(); err != nil {
		return false, fmt.Errorf("finish tarball: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close tarball: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("publish tarball: %w", err)
	}
	return false, nil
}

// barWriter advances the bar by the file content written to the archive.
// Headers and padding are not counted, and a bar overrun never fails the write.
type barWriter struct {
	bar *progressbar.ProgressBar
}

func (w barWriter) Write(p []byte) (int, error) {
	_ = w.bar.Add(len(p))
	return len(p), nil
}

// addToTar stores root and everything below it under its absolute path
// without the leading slash. File content is also copied to counter.
func addToTar(ctx context.Context, tw *tar.Writer, root string, counter io.Writer) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("tar header %s: %w", path, err)
		}
		hdr.Name = strings.TrimPrefix(filepath.ToSlash(path), "/")
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar header %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, io.TeeReader(f, counter)); err != nil {
			return fmt.Errorf("tar %s: %w", path, err)
		}
		return nil
	})
}
