package clip

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode"

	"gocv.io/x/gocv"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".exr":  true,
	".webp": true,
}

// SequenceClip is an ordered list of still images, one per frame.
type SequenceClip struct {
	paths  []string
	flags  gocv.IMReadFlag
	closed atomic.Bool
}

// OpenSequence accepts a directory, a glob pattern or a single image file.
// Files are ordered by their numeric parts so frame_9 sorts before frame_10.
func OpenSequence(pattern string, force8bit bool) (*SequenceClip, error) {
	paths, err := sequencePaths(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("open sequence %s: no images: %w", pattern, ErrUnsupportedClip)
	}

	channels := 0
	if force8bit {
		channels = sampleChannels(paths[0])
	}
	return &SequenceClip{paths: paths, flags: readFlags(force8bit, channels)}, nil
}

// readFlags keeps the file's depth and channels unless force8bit is set, in
// which case one-channel sequences stay gray and the rest load as 8-bit BGR.
func readFlags(force8bit bool, channels int) gocv.IMReadFlag {
	switch {
	case !force8bit:
		return gocv.IMReadAnyDepth | gocv.IMReadAnyColor
	case channels == 1:
		return gocv.IMReadGrayscale
	default:
		return gocv.IMReadColor
	}
}

// sampleChannels returns the channel count of path, or 0 when unreadable.
func sampleChannels(path string) int {
	mat := gocv.IMRead(path, gocv.IMReadAnyColor)
	defer mat.Close()
	if mat.Empty() {
		return 0
	}
	return mat.Channels()
}

func (s *SequenceClip) NumFrames() int { return len(s.paths) }

// Path returns the file backing frame.
func (s *SequenceClip) Path(frame int) string {
	if frame < 0 || frame >= len(s.paths) {
		return ""
	}
	return s.paths[frame]
}

func (s *SequenceClip) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *SequenceClip) readFrame(frame int, dst *gocv.Mat) error {
	if s.closed.Load() {
		return ErrClipClosed
	}
	path := s.Path(frame)
	if path == "" {
		return fmt.Errorf("%w: frame %d of %d", ErrFrameUnavailable, frame, len(s.paths))
	}

	mat := gocv.IMRead(path, s.flags)
	defer mat.Close()
	if mat.Empty() {
		return fmt.Errorf("%w: cannot read %s", ErrFrameUnavailable, path)
	}
	mat.CopyTo(dst)
	return nil
}

func sequencePaths(pattern string) ([]string, error) {
	info, err := os.Stat(pattern)
	switch {
	case err == nil && info.IsDir():
		entries, err := os.ReadDir(pattern)
		if err != nil {
			return nil, fmt.Errorf("read sequence directory: %w", err)
		}
		var paths []string
		for _, e := range entries {
			if !e.IsDir() && isImage(e.Name()) {
				paths = append(paths, filepath.Join(pattern, e.Name()))
			}
		}
		sortNatural(paths)
		return paths, nil
	case err == nil:
		if !isImage(pattern) {
			return nil, fmt.Errorf("open sequence %s: %w", pattern, ErrUnsupportedClip)
		}
		return []string{pattern}, nil
	}

	matches, globErr := filepath.Glob(pattern)
	if globErr != nil {
		return nil, fmt.Errorf("open sequence %s: %w", pattern, globErr)
	}
	paths := slices.DeleteFunc(matches, func(p string) bool { return !isImage(p) })
	sortNatural(paths)
	return paths, nil
}

func isImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

func sortNatural(paths []string) {
	slices.SortFunc(paths, func(a, b string) int {
		return compareNatural(filepath.Base(a), filepath.Base(b))
	})
}

// compareNatural orders strings treating runs of digits as numbers.
func compareNatural(a, b string) int {
	for a != "" && b != "" {
		ca, cb := rune(a[0]), rune(b[0])
		if unicode.IsDigit(ca) && unicode.IsDigit(cb) {
			na, restA := leadingNumber(a)
			nb, restB := leadingNumber(b)
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			a, b = restA, restB
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	return len(a) - len(b)
}

func leadingNumber(s string) (uint64, string) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		n = ^uint64(0)
	}
	return n, s[end:]
}
