package frames

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// WebcamSource reads frames from a local capture device. Captured Mats
// are already 8-bit BGR, matching the Frame pixel contract.
type WebcamSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// OpenWebcam opens the capture device with the given ID.
func OpenWebcam(deviceID int) (*WebcamSource, error) {
	capture, err := gocv.VideoCaptureDevice(deviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "open capture device %d", deviceID)
	}
	return &WebcamSource{
		capture: capture,
		mat:     gocv.NewMat(),
	}, nil
}

// Next grabs one frame from the device. The pixel data is copied out
// of the reused Mat, so returned frames stay valid across calls.
func (s *WebcamSource) Next() (Frame, error) {
	if !s.capture.Read(&s.mat) {
		return Frame{}, errors.New("capture device read failed")
	}
	if s.mat.Empty() {
		return Frame{}, errors.Wrap(ErrInvalidFrame, "empty capture")
	}
	return New(s.mat.ToBytes(), s.mat.Cols(), s.mat.Rows()), nil
}

// Close releases the device and the scratch Mat.
func (s *WebcamSource) Close() error {
	if err := s.mat.Close(); err != nil {
		return err
	}
	return s.capture.Close()
}
