package bitmap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// ConvertFile converts the PNG or JPEG at in and writes the BMP to out. An
// empty out replaces the input extension with .bmp. It returns the path
// written.
func ConvertFile(fs afero.Fs, in, out string) (string, error) {
	ext := strings.ToLower(filepath.Ext(in))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".bmp"
	}
	f, err := fs.Open(in)
	if err != nil {
		return "", err
	}
	defer f.Close()

	img, err := Convert(f)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", in, err)
	}
	if err := SaveFileAtomic(fs, out, Encode(img), 0o644); err != nil {
		return "", err
	}
	return out, nil
}

// LoadFrames reads every image in dir, in name order, and returns each as a
// base64 BMP. BMP files are taken as is; PNG and JPEG files are converted.
func LoadFrames(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var frames []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".bmp":
			data, err := afero.ReadFile(fs, path)
			if err != nil {
				return nil, err
			}
			frames = append(frames, encodeRaw(data))
		case ".png", ".jpg", ".jpeg":
			f, err := fs.Open(path)
			if err != nil {
				return nil, err
			}
			img, err := Convert(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("frame %s: %w", name, err)
			}
			frames = append(frames, EncodeBase64(img))
		}
	}
	return frames, nil
}

// SaveFileAtomic writes data to path by writing a temporary file in the same
// directory, syncing it, and renaming it into place.
func SaveFileAtomic(fs afero.Fs, path string, data []byte, mode os.FileMode) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return nil
}
