package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/stock_backend/config"
	"github.com/mmdatafocus/stock_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// wrapInternal logs errors outside the business taxonomy and marks them
// as utils.ErrInternal. Classified errors are returned unchanged.
func wrapInternal(logger *logrus.Logger, moduleName, funcName string, data any, err error) error {
	if err == nil || utils.ErrorKind(err) != utils.KindInternal || errors.Is(err, utils.ErrInternal) {
		return err
	}
	config.LogError(logger, moduleName, funcName, "unexpected error", data, err)
	return fmt.Errorf("%w: %w", utils.ErrInternal, err)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, utils.ErrorKind(err))
}

// observe runs fn inside a span named after the operation and classifies its error.
func observe[T any](ctx context.Context, logger *logrus.Logger, moduleName, funcName string, data any, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, moduleName+"."+funcName)
	defer span.End()
	result, err := fn(ctx)
	if err != nil {
		recordSpanError(span, err)
		var zero T
		return zero, wrapInternal(logger, moduleName, funcName, data, err)
	}
	return result, nil
}
