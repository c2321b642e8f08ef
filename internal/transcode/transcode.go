// Package transcode decodes source images and encodes them into the
// configured format and size matrix.
package transcode

import (
	"bytes"
	stderrors "errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register the WebP decoder

	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/foundation/normalization"
)

// FilterByName returns the resampling filter for a configured name,
// defaulting to Lanczos.
func FilterByName(name string) imaging.ResampleFilter {
	switch normalization.Clean(name) {
	case "catmullrom":
		return imaging.CatmullRom
	case "mitchell":
		return imaging.MitchellNetravali
	case "linear":
		return imaging.Linear
	case "box":
		return imaging.Box
	case "nearest":
		return imaging.NearestNeighbor
	default:
		return imaging.Lanczos
	}
}

// Transcoder resizes and encodes decoded images. It holds no mutable state
// and is safe for concurrent use.
type Transcoder struct {
	Filter       imaging.ResampleFilter
	AllowUpscale bool
}

// NewTranscoder creates a transcoder from image configuration.
func NewTranscoder(cfg config.ImagesConfig) *Transcoder {
	return &Transcoder{Filter: FilterByName(cfg.Resample), AllowUpscale: cfg.AllowUpscale}
}

// EncodedImage is the result of one job.
type EncodedImage struct {
	Name    string
	Format  Format
	Variant string
	Width   int
	Height  int
	Data    []byte
}

// TranscodeError reports a failed job. Other jobs of the same image are unaffected.
type TranscodeError struct {
	Path    string
	Format  Format
	Variant string
	err     *errors.ClassifiedError
}

// NewTranscodeError classifies cause as a transcode failure.
func NewTranscodeError(format Format, variant, msg string, cause error) *TranscodeError {
	return &TranscodeError{
		Format:  format,
		Variant: variant,
		err: errors.WrapError(cause, errors.CategoryTranscode, msg).
			NextRun().
			WithContext("format", string(format)).
			WithContext("variant", variant).
			Build(),
	}
}

func (e *TranscodeError) Error() string {
	prefix := "transcode"
	if e.Path != "" {
		prefix += " " + e.Path
	}
	if e.Variant != "" || e.Format != "" {
		prefix += " [" + e.Variant + "/" + string(e.Format) + "]"
	}
	return prefix + ": " + e.err.Error()
}

func (e *TranscodeError) Unwrap() error { return e.err }

// AsTranscodeError extracts a *TranscodeError from err.
func AsTranscodeError(err error) (*TranscodeError, bool) {
	var te *TranscodeError
	if stderrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Decode decodes JPEG, PNG, GIF or WebP data, applying EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, NewTranscodeError("", "", "decode source image", err)
	}
	return img, nil
}

// Transcode produces the output for one job. src is shared between
// concurrent jobs and is never modified.
func (t *Transcoder) Transcode(src image.Image, job ImageJob) (*EncodedImage, error) {
	enc, ok := encoders[job.Format]
	if !ok {
		return nil, NewTranscodeError(job.Format, job.Variant.Name, "format not available in this build", nil)
	}

	b := src.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), job.Variant, t.AllowUpscale)
	if w <= 0 || h <= 0 {
		return nil, NewTranscodeError(job.Format, job.Variant.Name, "source image has no pixels", nil)
	}

	var out image.Image
	switch {
	case w == b.Dx() && h == b.Dy():
		out = src
	case job.Variant.Crop && job.Variant.Height > 0:
		out = imaging.Fill(src, w, h, imaging.Center, t.Filter)
	default:
		out = imaging.Resize(src, w, h, t.Filter)
	}

	var buf bytes.Buffer
	if err := enc(&buf, out, job.Quality); err != nil {
		return nil, NewTranscodeError(job.Format, job.Variant.Name, "encode", err)
	}

	return &EncodedImage{
		Name:    job.OutputName(w, h),
		Format:  job.Format,
		Variant: job.Variant.Name,
		Width:   w,
		Height:  h,
		Data:    buf.Bytes(),
	}, nil
}

// TargetSize computes the output dimensions for a source of srcW x srcH.
//
//   - Width 0: source size.
//   - Crop with width and height: exactly width x height.
//   - Width and height without crop: fit inside the box.
//   - Width only: that width, height following the aspect ratio.
//
// Without upscale the result never exceeds the source; a crop target is
// shrunk keeping its own aspect ratio.
func TargetSize(srcW, srcH int, v SizeVariant, upscale bool) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	if v.Width <= 0 {
		return srcW, srcH
	}

	if v.Crop && v.Height > 0 {
		w, h := v.Width, v.Height
		if !upscale && (w > srcW || h > srcH) {
			scale := math.Min(float64(srcW)/float64(w), float64(srcH)/float64(h))
			w, h = scaled(w, scale), scaled(h, scale)
		}
		return w, h
	}

	scale := float64(v.Width) / float64(srcW)
	if v.Height > 0 {
		scale = math.Min(scale, float64(v.Height)/float64(srcH))
	}
	if !upscale && scale > 1 {
		scale = 1
	}
	return scaled(srcW, scale), scaled(srcH, scale)
}

func scaled(n int, scale float64) int {
	return max(1, int(math.Round(float64(n)*scale)))
}
