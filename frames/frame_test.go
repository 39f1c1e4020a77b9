package frames

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		ok    bool
	}{
		{
			name:  "valid BGR frame",
			frame: New(make([]byte, 4*3*Channels), 4, 3),
			ok:    true,
		},
		{
			name:  "single channel buffer",
			frame: New(make([]byte, 4*3), 4, 3),
			ok:    false,
		},
		{
			name:  "zero dimensions",
			frame: New(nil, 0, 0),
			ok:    false,
		},
		{
			name:  "truncated buffer",
			frame: New(make([]byte, 4*3*Channels-1), 4, 3),
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFrame)
			}
		})
	}
}

func TestFromImagePixelOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(1, 0, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	f := FromImage(img)
	require.NoError(t, f.Validate())

	b, g, r := f.At(0, 0)
	assert.Equal(t, byte(30), b)
	assert.Equal(t, byte(20), g)
	assert.Equal(t, byte(10), r)

	b, g, r = f.At(1, 0)
	assert.Equal(t, byte(50), b)
	assert.Equal(t, byte(100), g)
	assert.Equal(t, byte(200), r)
}

func TestDirectorySourceOrder(t *testing.T) {
	dir := t.TempDir()

	// Write out of order on purpose; frame-2 before frame-10 checks
	// numeric (not lexical) ordering. Each frame is a solid gray whose
	// level encodes its number, surviving JPEG compression.
	for _, n := range []int{10, 2, 1} {
		img := image.NewRGBA(image.Rect(0, 0, 4, 4))
		level := uint8(n * 20)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				img.Set(x, y, color.RGBA{R: level, G: level, B: level, A: 255})
			}
		}
		path := filepath.Join(dir, "frame-"+strconv.Itoa(n)+".jpg")
		file, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, jpeg.Encode(file, img, nil))
		require.NoError(t, file.Close())
	}

	src, err := NewDirectorySource(dir)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, 3, src.Remaining())
	for _, n := range []int{1, 2, 10} {
		f, err := src.Next()
		require.NoError(t, err)
		require.NoError(t, f.Validate())
		b, _, _ := f.At(2, 2)
		assert.InDelta(t, n*20, int(b), 8, "frame %d out of order", n)
	}
	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}
