package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxNameAttempts = 1000

// Saver persists a downloaded artifact and returns where it ended up.
type Saver interface {
	Save(ctx context.Context, filename string, r io.Reader) (path string, n int64, err error)
}

// FileSaver writes artifacts into Dir without overwriting existing files.
// A name that is taken gets a " (n)" suffix before the extension.
type FileSaver struct {
	// Dir is the target directory. Default: current directory.
	Dir string
}

// Save streams r to a temporary file in Dir and links it into place.
// The temporary file is removed on every failure.
func (s FileSaver) Save(ctx context.Context, filename string, r io.Reader) (savedPath string, n int64, err error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err = io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		return "", n, fmt.Errorf("write artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return "", n, fmt.Errorf("close artifact: %w", err)
	}

	savedPath, err = s.place(tmpName, dir, filename)
	if err != nil {
		return "", n, err
	}
	return savedPath, n, nil
}

func (s FileSaver) place(tmpName, dir, filename string) (string, error) {
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	for i := 0; i < maxNameAttempts; i++ {
		name := filename
		if i > 0 {
			name = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		target := filepath.Join(dir, name)
		// Link fails instead of replacing an existing name.
		if err := os.Link(tmpName, target); err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", fmt.Errorf("link artifact: %w", err)
		}
		if err := os.Remove(tmpName); err != nil {
			return "", fmt.Errorf("remove temp file: %w", err)
		}
		return target, nil
	}
	return "", fmt.Errorf("no free filename for %s in %s", filename, dir)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
