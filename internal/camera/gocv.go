//go:build gocv

package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
	"gocv.io/x/gocv"
)

// videoCapture reads frames from a V4L/UVC device through OpenCV.
type videoCapture struct {
	cfg    config.CameraConfig
	logger *slog.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	img     gocv.Mat
	resized gocv.Mat
}

func openVideoCapture(cfg config.CameraConfig, logger *slog.Logger) (Camera, error) {
	capture, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("open video capture %d: %w", cfg.DeviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("video capture %d did not open", cfg.DeviceID)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))

	logger.Info("camera opened", slog.Int("device", cfg.DeviceID), slog.Int("width", cfg.Width), slog.Int("height", cfg.Height))
	return &videoCapture{
		cfg:     cfg,
		logger:  logger,
		capture: capture,
		img:     gocv.NewMat(),
		resized: gocv.NewMat(),
	}, nil
}

func (v *videoCapture) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.capture == nil {
		return Frame{}, errors.New("camera closed")
	}
	if ok := v.capture.Read(&v.img); !ok || v.img.Empty() {
		return Frame{}, errors.New("camera frame read failed")
	}
	gocv.Resize(v.img, &v.resized, image.Pt(v.cfg.Width, v.cfg.Height), 0, 0, gocv.InterpolationLinear)
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, v.resized)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	data := append([]byte(nil), buf.GetBytes()...)
	return Frame{JPEG: data, Width: v.cfg.Width, Height: v.cfg.Height, CapturedAt: time.Now()}, nil
}

func (v *videoCapture) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.capture == nil {
		return nil
	}
	err := v.capture.Close()
	v.capture = nil
	v.img.Close()
	v.resized.Close()
	v.logger.Info("camera released", slog.Int("device", v.cfg.DeviceID))
	return err
}
