// Package clip opens video files and image sequences with OpenCV and turns
// their frames into display images.
package clip

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"clip-quickview/internal/logger"
	"clip-quickview/internal/sources"
)

var (
	ErrUnsupportedClip  = errors.New("clip: unsupported clip")
	ErrFrameUnavailable = errors.New("clip: frame unavailable")
	ErrClipClosed       = errors.New("clip: clip is closed")
)

// Kind selects how Open interprets a path.
type Kind string

const (
	KindAuto     Kind = ""
	KindVideo    Kind = "video"
	KindSequence Kind = "sequence"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAuto, KindVideo, KindSequence:
		return k, nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrUnsupportedClip, s)
	}
}

type frameReader interface {
	readFrame(frame int, dst *gocv.Mat) error
}

type Options struct {
	// Captures bounds the idle VideoCaptures kept per video.
	Captures  int
	Force8Bit bool
	Logger    logger.Logger
}

// Open opens path as a registered source. Directories, glob patterns and
// still images become sequences; anything else is tried as a video.
func Open(path string, kind Kind, opts Options) (*sources.Source, error) {
	if kind == KindAuto {
		kind = detectKind(path)
	}

	switch kind {
	case KindSequence:
		seq, err := OpenSequence(path, opts.Force8Bit)
		if err != nil {
			return nil, err
		}
		return sources.NewSource(seq, probeSequenceColor(seq)), nil
	case KindVideo:
		video, err := OpenVideo(path, opts.Captures)
		if err != nil {
			return nil, err
		}
		return sources.NewSource(video, sources.DefaultColor()), nil
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrUnsupportedClip, kind)
	}
}

func detectKind(path string) Kind {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return KindSequence
	}
	if strings.ContainsAny(filepath.Base(path), "*?[") || isImage(path) {
		return KindSequence
	}
	return KindVideo
}

func probeSequenceColor(seq *SequenceClip) sources.ColorMetadata {
	color := sources.DefaultColor()

	mat := gocv.IMRead(seq.Path(0), seq.flags)
	defer mat.Close()
	if mat.Empty() {
		return color
	}
	if mat.Channels() == 1 {
		color.Family = sources.ColorGray
	}
	color.BitsPerSample = bitsPerSample(mat.Type())
	return color
}

// Decoder reads frames from clips opened by this package.
type Decoder struct {
	logger logger.Logger
}

func NewDecoder(log logger.Logger) *Decoder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Decoder{logger: log}
}

// Decode seeks to frame and converts it to an 8-bit image: gray sources
// become *image.Gray, everything else *image.RGBA without alpha.
func (d *Decoder) Decode(src *sources.Source, frame int) (image.Image, error) {
	reader, ok := src.Clip().(frameReader)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedClip, src.Clip())
	}

	mat := gocv.NewMat()
	defer mat.Close()
	if err := reader.readFrame(frame, &mat); err != nil {
		return nil, err
	}

	display, err := toDisplay(mat, src.Color())
	if err != nil {
		return nil, err
	}
	defer display.Close()

	img, err := display.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame %d: %w", frame, err)
	}

	d.logger.Debug("Decoder", "frame decoded", map[string]interface{}{
		"frame":  frame,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})
	return img, nil
}

// toDisplay returns a new 8-bit Mat with one channel for gray sources and
// three (BGR) otherwise. The caller closes it.
func toDisplay(src gocv.Mat, color sources.ColorMetadata) (gocv.Mat, error) {
	if err := validateMat(src, "display conversion"); err != nil {
		return gocv.Mat{}, err
	}

	eight := gocv.NewMat()
	if scale, ok := depthScale(src.Type()); ok {
		src.ConvertToWithParams(&eight, gocv.MatTypeCV8U, float32(scale), 0)
	} else {
		src.CopyTo(&eight)
	}

	out := gocv.NewMat()
	var code gocv.ColorConversionCode
	gray := color.Family == sources.ColorGray

	switch ch := eight.Channels(); {
	case ch == 1 && gray:
		eight.CopyTo(&out)
		eight.Close()
		return out, nil
	case ch == 1:
		code = gocv.ColorGrayToBGR
	case ch == 3 && gray:
		code = gocv.ColorBGRToGray
	case ch == 3:
		eight.CopyTo(&out)
		eight.Close()
		return out, nil
	case ch == 4 && gray:
		code = gocv.ColorBGRAToGray
	case ch == 4:
		code = gocv.ColorBGRAToBGR
	default:
		eight.Close()
		out.Close()
		return gocv.Mat{}, fmt.Errorf("%w: %d channels", ErrUnsupportedClip, ch)
	}

	gocv.CvtColor(eight, &out, code)
	eight.Close()
	return out, nil
}

// depthScale returns the factor that maps the Mat's depth onto 0..255, and
// false when it already is 8-bit unsigned.
func depthScale(t gocv.MatType) (float64, bool) {
	switch gocv.MatType(int(t) & 7) {
	case gocv.MatTypeCV8U:
		return 1, false
	case gocv.MatTypeCV8S:
		return 2, true
	case gocv.MatTypeCV16U:
		return 255.0 / 65535.0, true
	case gocv.MatTypeCV16S:
		return 255.0 / 32767.0, true
	case gocv.MatTypeCV32F, gocv.MatTypeCV64F:
		return 255, true
	default:
		return 1.0 / 65536.0, true
	}
}

func bitsPerSample(t gocv.MatType) int {
	switch gocv.MatType(int(t) & 7) {
	case gocv.MatTypeCV8U, gocv.MatTypeCV8S:
		return 8
	case gocv.MatTypeCV16U, gocv.MatTypeCV16S:
		return 16
	case gocv.MatTypeCV64F:
		return 64
	default:
		return 32
	}
}
