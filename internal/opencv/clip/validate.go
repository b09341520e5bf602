package clip

import (
	"fmt"

	"gocv.io/x/gocv"
)

// validateMat rejects Mats a conversion step cannot work on.
func validateMat(mat gocv.Mat, operation string) error {
	if mat.Empty() {
		return fmt.Errorf("%w: empty Mat for %s", ErrFrameUnavailable, operation)
	}
	if mat.Rows() <= 0 || mat.Cols() <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d for %s",
			ErrFrameUnavailable, mat.Cols(), mat.Rows(), operation)
	}
	return nil
}
