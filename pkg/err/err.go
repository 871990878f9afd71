package errprocess

import (
	"fmt"

	"course_messaging_service/pkg/logger"

	"go.uber.org/zap"
)

// Wrap logs the failing step and returns err wrapped with it, nil stays nil.
func Wrap(step string, err error, fields ...zap.Field) error {
	if err == nil {
		return nil
	}
	logger.Log.Error(step, append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", step, err)
}
