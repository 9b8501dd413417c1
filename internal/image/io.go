package image

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gogpu/gpucontext"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when no encoder handles a file extension.
	ErrUnsupportedFormat = errors.New("image: unsupported format")

	// ErrEmptyImage is returned when encoding an image with no pixels.
	ErrEmptyImage = errors.New("image: empty image")
)

// DefaultJPEGQuality is used when EncodeOptions.Quality is zero.
const DefaultJPEGQuality = 95

// EncodeOptions tunes lossy and compressed encoders. Encoders ignore fields
// that do not apply to them.
type EncodeOptions struct {
	// Quality is the JPEG quality, 1-100.
	Quality int
}

// Encoder writes img to w in one file format.
type Encoder func(w io.Writer, img image.Image, o EncodeOptions) error

var encoders = gpucontext.NewRegistry[Encoder](
	gpucontext.WithPriority("png", "jpeg", "bmp", "tiff"),
)

var extensions = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
}

func init() {
	encoders.Register("png", func() Encoder { return encodePNG })
	encoders.Register("jpeg", func() Encoder { return encodeJPEG })
	encoders.Register("bmp", func() Encoder { return encodeBMP })
	encoders.Register("tiff", func() Encoder { return encodeTIFF })
}

// Formats returns the registered format names, sorted.
func Formats() []string {
	names := encoders.Available()
	slices.Sort(names)
	return names
}

// FormatFor returns the format name for a file path's extension.
func FormatFor(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	name, ok := extensions[ext]
	if !ok || !encoders.Has(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return name, nil
}

// Encode writes img to w in the named format.
func Encode(w io.Writer, format string, img image.Image, o EncodeOptions) error {
	enc := encoders.Get(format)
	if enc == nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if img.Bounds().Empty() {
		return ErrEmptyImage
	}
	if err := enc(w, img, o); err != nil {
		return fmt.Errorf("image: encode %s: %w", format, err)
	}
	return nil
}

// Save writes img to path, choosing the encoder from the extension.
func Save(path string, img image.Image, o EncodeOptions) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("image: create file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := Encode(bw, format, img, o); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("image: write file: %w", err)
	}
	return f.Close()
}

func encodePNG(w io.Writer, img image.Image, _ EncodeOptions) error {
	return png.Encode(w, img)
}

func encodeJPEG(w io.Writer, img image.Image, o EncodeOptions) error {
	q := o.Quality
	if q == 0 {
		q = DefaultJPEGQuality
	}
	q = min(max(q, 1), 100)
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

func encodeBMP(w io.Writer, img image.Image, _ EncodeOptions) error {
	return bmp.Encode(w, img)
}

func encodeTIFF(w io.Writer, img image.Image, _ EncodeOptions) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}
