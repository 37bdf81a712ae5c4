//go:build !gocv

package camera

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/signbridge/internal/config"
)

// openVideoCapture returns an error when the binary was built without OpenCV.
func openVideoCapture(cfg config.CameraConfig, logger *slog.Logger) (Camera, error) {
	return nil, fmt.Errorf("camera backend gocv requires building with -tags gocv")
}
