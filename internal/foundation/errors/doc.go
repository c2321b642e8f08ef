// Package errors provides the classified error primitives used across pressroom.
//
// A ClassifiedError carries a category (io, render, transcode, cache, ...),
// a severity and a retry strategy, plus structured context. Per-item build
// failures are classified errors with SeverityError; conditions that abort a
// whole build run are SeverityFatal.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryTranscode, "encode failed").
//		WithContext("path", item.Path).
//		WithContext("format", "webp").
//		Build()
package errors
