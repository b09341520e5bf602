package sources

import "io"

// Clip is an opaque decodable handle. Implementations that hold native
// resources may also implement io.Closer; the scheduler closes a clip once it
// has been replaced or removed and no decode can still reach it.
type Clip interface {
	NumFrames() int
}

// ColorFamily describes how decoded pixels are laid out.
type ColorFamily int

const (
	ColorRGB ColorFamily = iota
	ColorGray
	ColorYUV
)

func (f ColorFamily) String() string {
	switch f {
	case ColorRGB:
		return "rgb"
	case ColorGray:
		return "gray"
	case ColorYUV:
		return "yuv"
	default:
		return "unknown"
	}
}

// ColorMetadata is what a decoder needs to turn a frame into display pixels.
type ColorMetadata struct {
	Family        ColorFamily
	BitsPerSample int
	ColorSpaceIn  string
	ColorSpace    string
}

// DefaultColor is 8-bit sRGB in and out.
func DefaultColor() ColorMetadata {
	return ColorMetadata{
		Family:        ColorRGB,
		BitsPerSample: 8,
		ColorSpaceIn:  "srgb",
		ColorSpace:    "srgb",
	}
}

// Source is a registered clip. It is immutable once registered.
type Source struct {
	clip      Clip
	numFrames int
	color     ColorMetadata
}

func NewSource(clip Clip, color ColorMetadata) *Source {
	n := clip.NumFrames()
	if n < 0 {
		n = 0
	}
	return &Source{clip: clip, numFrames: n, color: color}
}

func (s *Source) Clip() Clip           { return s.clip }
func (s *Source) NumFrames() int       { return s.numFrames }
func (s *Source) Color() ColorMetadata { return s.color }

// Contains reports whether frame is a valid frame number of the source.
func (s *Source) Contains(frame int) bool {
	return s != nil && frame >= 0 && frame < s.numFrames
}

// Close releases the clip's handle when it holds one.
func (s *Source) Close() error {
	if closer, ok := s.clip.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
