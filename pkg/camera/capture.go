package camera

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lensmon/internal/log"
	"github.com/teslashibe/go-lensmon/pkg/sampling"
)

var (
	// ErrNotOpen is returned when frames are requested before Init.
	ErrNotOpen = errors.New("camera: not open")

	// ErrReadFailed is returned when the device yields no frame.
	ErrReadFailed = fmt.Errorf("camera: read failed: %w", sampling.ErrFrameDropped)
)

// V4L2 encodes the auto-exposure switch as a menu index that OpenCV maps
// to these fractions.
const (
	autoExposureOn  = 0.75
	autoExposureOff = 0.25
)

// Capture owns an OpenCV video capture and the most recent frame.
// It implements sampling.Field and sampling.Refresher, and is opened lazily
// through Init so a monitor can retry a camera that is busy or unplugged.
type Capture struct {
	config Config

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	frame  gocv.Mat
	frames int
}

// New creates a capture. The device is not opened until Init.
func New(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: invalid config: %v", errs)
	}
	return &Capture{config: cfg, frame: gocv.NewMat()}, nil
}

// Config returns the capture settings.
func (c *Capture) Config() Config { return c.config }

// Init opens the device or file. Calling it on an open capture reopens it.
func (c *Capture) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.release()

	var src any = c.config.Device
	if c.config.File != "" {
		src = c.config.File
	}
	vc, err := gocv.OpenVideoCapture(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.config.Source(), err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open %s: %w", c.config.Source(), ErrNotOpen)
	}

	if c.config.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	}
	if c.config.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	}
	if c.config.Framerate > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(c.config.Framerate))
	}
	if c.config.File == "" {
		if c.config.AutoExposure {
			vc.Set(gocv.VideoCaptureAutoExposure, autoExposureOn)
		} else {
			vc.Set(gocv.VideoCaptureAutoExposure, autoExposureOff)
			vc.Set(gocv.VideoCaptureExposure, c.config.Exposure)
		}
	}

	c.vc = vc
	log.Info("camera opened",
		"source", c.config.Source(),
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))
	return nil
}

// Refresh grabs the next frame. On failure the previous frame is dropped
// so the field reports not ready until a read succeeds.
func (c *Capture) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.vc == nil {
		return ErrNotOpen
	}
	if ok := c.vc.Read(&c.frame); !ok || c.frame.Empty() {
		if c.config.Loop && c.config.File != "" {
			c.vc.Set(gocv.VideoCapturePosFrames, 0)
			if c.vc.Read(&c.frame) && !c.frame.Empty() {
				c.frames++
				return nil
			}
		}
		c.frame.Close()
		c.frame = gocv.NewMat()
		return ErrReadFailed
	}
	c.frames++
	return nil
}

// Width implements sampling.Field.
func (c *Capture) Width() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame.Empty() {
		return 0
	}
	return c.frame.Cols()
}

// Height implements sampling.Field.
func (c *Capture) Height() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame.Empty() {
		return 0
	}
	return c.frame.Rows()
}

// Sample implements sampling.Field. Frames are 8-bit BGR or grayscale.
func (c *Capture) Sample(u, v float64) (sampling.RGB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame.Empty() {
		return sampling.RGB{}, sampling.ErrFieldNotReady
	}
	x, y, err := sampling.PixelAt(u, v, c.frame.Cols(), c.frame.Rows())
	if err != nil {
		return sampling.RGB{}, err
	}

	switch c.frame.Channels() {
	case 1:
		g := float64(c.frame.GetUCharAt(y, x)) / 255
		return sampling.RGB{R: g, G: g, B: g}, nil
	case 3, 4:
		px := c.frame.GetVecbAt(y, x)
		return sampling.RGB{
			R: float64(px[2]) / 255,
			G: float64(px[1]) / 255,
			B: float64(px[0]) / 255,
		}, nil
	default:
		return sampling.RGB{}, fmt.Errorf("camera: unsupported channel count %d", c.frame.Channels())
	}
}

// FrameLuminance returns the WCAG relative luminance averaged over every
// pixel of the current frame. Luminance is linear in the channels, so the
// per-channel means give the same result as a per-pixel average.
func (c *Capture) FrameLuminance() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frame.Empty() {
		return 0, sampling.ErrFieldNotReady
	}
	mean := c.frame.Mean()
	switch c.frame.Channels() {
	case 1:
		return mean.Val1 / 255, nil
	case 3, 4:
		return sampling.Luminance(mean.Val3/255, mean.Val2/255, mean.Val1/255), nil
	default:
		return 0, fmt.Errorf("camera: unsupported channel count %d", c.frame.Channels())
	}
}

// Info describes an open capture as reported by the driver.
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int // 0 for live devices
}

// Info returns the capture's driver properties.
func (c *Capture) Info() (Info, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc == nil {
		return Info{}, ErrNotOpen
	}
	info := Info{
		Width:  int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    c.vc.Get(gocv.VideoCaptureFPS),
	}
	if n := c.vc.Get(gocv.VideoCaptureFrameCount); n > 0 {
		info.FrameCount = int(n)
	}
	return info, nil
}

// Frames returns how many frames have been read since creation.
func (c *Capture) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Snapshot converts the current frame to an image, for previews.
func (c *Capture) Snapshot() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frame.Empty() {
		return nil, sampling.ErrFieldNotReady
	}
	return c.frame.ToImage()
}

// Close releases the device and frame buffer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return c.frame.Close()
}

// release closes the device. Caller holds mu.
func (c *Capture) release() {
	if c.vc != nil {
		c.vc.Close()
		c.vc = nil
	}
}
