package clip

import (
	"fmt"

	"gocv.io/x/gocv"
)

// VideoClip is a video file decoded through OpenCV's VideoCapture.
type VideoClip struct {
	path     string
	frames   int
	width    int
	height   int
	fps      float64
	captures *capturePool
}

// OpenVideo probes path and keeps the probing capture for the first decode.
func OpenVideo(path string, captures int) (*VideoClip, error) {
	capture, err := openCapture(path)
	if err != nil {
		return nil, err
	}

	frames := int(capture.Get(gocv.VideoCaptureFrameCount))
	if frames <= 0 {
		capture.Close()
		return nil, fmt.Errorf("open video %s: no frames: %w", path, ErrUnsupportedClip)
	}

	v := &VideoClip{
		path:     path,
		frames:   frames,
		width:    int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:   int(capture.Get(gocv.VideoCaptureFrameHeight)),
		fps:      capture.Get(gocv.VideoCaptureFPS),
		captures: newCapturePool(path, captures),
	}
	v.captures.opened = 1
	v.captures.put(capture)
	return v, nil
}

func (v *VideoClip) NumFrames() int   { return v.frames }
func (v *VideoClip) Path() string     { return v.path }
func (v *VideoClip) Size() (int, int) { return v.width, v.height }
func (v *VideoClip) FPS() float64     { return v.fps }

// Close releases the idle captures. Decodes still running close theirs on
// return.
func (v *VideoClip) Close() error {
	v.captures.cleanup()
	return nil
}

func (v *VideoClip) readFrame(frame int, dst *gocv.Mat) error {
	if frame < 0 || frame >= v.frames {
		return fmt.Errorf("%w: frame %d of %d", ErrFrameUnavailable, frame, v.frames)
	}

	capture, err := v.captures.get()
	if err != nil {
		return err
	}
	defer v.captures.put(capture)

	capture.Set(gocv.VideoCapturePosFrames, float64(frame))
	if !capture.Read(dst) || dst.Empty() {
		return fmt.Errorf("%w: %s frame %d", ErrFrameUnavailable, v.path, frame)
	}
	return nil
}
