package entity

import "errors"

// Ошибки кадра, после которых поток продолжается с запасным преобразованием.
var (
	ErrInsufficientCorrespondences = errors.New("insufficient correspondences")
	ErrDegenerateGeometry          = errors.New("degenerate geometry")
	ErrTrackingLost                = errors.New("tracking lost")
)

// Нарушения инвариантов. Восстановлению не подлежат.
var (
	ErrCountMismatch = errors.New("region count mismatch")
	ErrFrameSize     = errors.New("frame size differs from reference")
	ErrNoSnapshot    = errors.New("no region snapshot for reference frame")
)

// IsRecoverable сообщает, что ошибка относится к одному кадру и поток можно продолжать.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientCorrespondences) ||
		errors.Is(err, ErrDegenerateGeometry) ||
		errors.Is(err, ErrTrackingLost)
}
