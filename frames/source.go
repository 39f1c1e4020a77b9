package frames

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Source yields frames for the pipeline. Next returns io.EOF when the
// source is exhausted (file-backed sources only; live sources block
// until a frame is available or fail).
type Source interface {
	Next() (Frame, error)
	Close() error
}

// DirectorySource replays image files named frame-<N>.<ext> from a
// directory in frame-number order. Useful for offline runs and tests
// where no camera is attached.
type DirectorySource struct {
	paths []string
	next  int
}

// NewDirectorySource scans dir for frame image files.
//
// Arguments:
//   - dir: Directory containing frame-<N>.jpg/.jpeg/.png files.
//
// Returns:
//   - *DirectorySource: Source replaying the files in frame order.
//   - error: Error if the directory cannot be read or a file name does
//     not carry a frame number.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read frame directory %s", dir)
	}

	type entry struct {
		path  string
		frame int
	}
	var entries []entry
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		ext := filepath.Ext(file.Name())
		switch ext {
		case ".jpg", ".jpeg", ".png":
		default:
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(file.Name(), "frame-"), ext))
		if err != nil {
			return nil, errors.Wrapf(err, "frame number in %s", file.Name())
		}
		entries = append(entries, entry{path: filepath.Join(dir, file.Name()), frame: n})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].frame < entries[j].frame
	})

	s := &DirectorySource{paths: make([]string, len(entries))}
	for i, e := range entries {
		s.paths[i] = e.path
	}
	return s, nil
}

// Next decodes and returns the next frame, or io.EOF past the end.
func (s *DirectorySource) Next() (Frame, error) {
	if s.next >= len(s.paths) {
		return Frame{}, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "read %s", path)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, errors.Wrapf(err, "decode %s", path)
	}
	return FromImage(img), nil
}

// Close implements Source. DirectorySource holds no resources.
func (s *DirectorySource) Close() error {
	return nil
}

// Remaining returns how many frames are left to replay.
func (s *DirectorySource) Remaining() int {
	return len(s.paths) - s.next
}

// FromImage converts a decoded image into a BGR frame.
func FromImage(img image.Image) Frame {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	pixels := make([]byte, w*h*Channels)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			pixels[i] = byte(b >> 8)
			pixels[i+1] = byte(g >> 8)
			pixels[i+2] = byte(r >> 8)
			i += Channels
		}
	}
	return New(pixels, w, h)
}
