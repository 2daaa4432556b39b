package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// imageExts are the encodings a generated scene image may be stored in.
var imageExts = []string{".png", ".jpg", ".jpeg", ".webp"}

// FileStore owns the on-disk layout for uploads, generated images and
// rendered output, keyed by parable id and scene order.
type FileStore struct {
	UploadDir string
	OutputDir string
	StaticDir string
}

func NewFileStore(uploadDir, outputDir, staticDir string) *FileStore {
	return &FileStore{UploadDir: uploadDir, OutputDir: outputDir, StaticDir: staticDir}
}

func (f *FileStore) imageDir(parableID string) string {
	return filepath.Join(f.UploadDir, "images", parableID)
}

func (f *FileStore) audioDir(parableID string) string {
	return filepath.Join(f.UploadDir, "audio", parableID)
}

func (f *FileStore) videoDir(parableID string) string {
	return filepath.Join(f.UploadDir, "videos", parableID)
}

func (f *FileStore) ImagePath(parableID string, sceneOrder int, ext string) string {
	return filepath.Join(f.imageDir(parableID), fmt.Sprintf("scene_%d%s", sceneOrder, ext))
}

// FindImage returns the stored image for a scene in any accepted encoding.
func (f *FileStore) FindImage(parableID string, sceneOrder int) (string, bool) {
	for _, ext := range imageExts {
		p := f.ImagePath(parableID, sceneOrder, ext)
		if st, err := os.Stat(p); err == nil && !st.IsDir() && st.Size() > 0 {
			return p, true
		}
	}
	return "", false
}

// RemoveImages deletes every stored encoding of the given scene.
func (f *FileStore) RemoveImages(parableID string, sceneOrder int) {
	for _, ext := range imageExts {
		_ = os.Remove(f.ImagePath(parableID, sceneOrder, ext))
	}
}

func (f *FileStore) AudioPath(parableID, ext string) string {
	return filepath.Join(f.audioDir(parableID), "narration"+strings.ToLower(ext))
}

func (f *FileStore) VideoPath(parableID string, sceneOrder int) string {
	return filepath.Join(f.videoDir(parableID), fmt.Sprintf("scene_%d.mp4", sceneOrder))
}

func (f *FileStore) FinalPath(parableID string) string {
	return filepath.Join(f.OutputDir, "final", fmt.Sprintf("parable_%s_final.mp4", parableID))
}

func (f *FileStore) MusicDir() string {
	return filepath.Join(f.StaticDir, "music")
}

// RemoveParable deletes every file stored for the parable.
func (f *FileStore) RemoveParable(parableID string) error {
	for _, dir := range []string{f.imageDir(parableID), f.audioDir(parableID), f.videoDir(parableID)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	if err := os.Remove(f.FinalPath(parableID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove final video: %w", err)
	}
	return nil
}

// WriteFileAtomic streams r into a temp file next to path, runs verify on the
// temp file if given and renames it into place. Readers never observe a
// partially written file at path.
func WriteFileAtomic(path string, r io.Reader, verify func(tmp string) error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*"+filepath.Ext(path))
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", path, err)
	}
	if verify != nil {
		if err := verify(tmpName); err != nil {
			return 0, err
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, fmt.Errorf("rename into %s: %w", path, err)
	}
	committed = true
	return n, nil
}
