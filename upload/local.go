package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hugolhafner/go-coldstore/registry"
)

var _ Transport = (*LocalTransport)(nil)

// LocalTransport copies buffered files into a destination directory,
// mirroring the registry layout. Intended for development and tests.
type LocalTransport struct {
	files   *registry.Registry
	destDir string
}

func NewLocalTransport(files *registry.Registry, destDir string) *LocalTransport {
	return &LocalTransport{files: files, destDir: destDir}
}

func (t *LocalTransport) Upload(ctx context.Context, p registry.LogPath) Handle {
	return run(func() error {
		src, err := os.Open(t.files.AbsolutePath(p))
		if err != nil {
			return fmt.Errorf("open %s for upload: %w", p.Relative(), err)
		}
		defer src.Close()

		dstPath := filepath.Join(t.destDir, p.Relative())
		if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
			return fmt.Errorf("create destination dir: %w", err)
		}

		dst, err := os.Create(dstPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", dstPath, err)
		}

		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return fmt.Errorf("copy %s: %w", p.Relative(), err)
		}
		if err := dst.Close(); err != nil {
			return fmt.Errorf("close %s: %w", dstPath, err)
		}
		return nil
	})
}
