package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the tracer name for gorestore operations
const TracerName = "github.com/willibrandon/gorestore"

// Common attribute keys
const (
	AttrProjectID      = attribute.Key("restore.project.id")
	AttrPackageID      = attribute.Key("restore.package.id")
	AttrPackageVersion = attribute.Key("restore.package.version")
	AttrSource         = attribute.Key("restore.source")
	AttrTarget         = attribute.Key("restore.target")
	AttrOperation      = attribute.Key("restore.operation")
	AttrNoOp           = attribute.Key("restore.noop")
	AttrRetryAttempt   = attribute.Key("restore.retry.attempt")
)

// StartProjectRestoreSpan starts the span covering one project's restore.
func StartProjectRestoreSpan(ctx context.Context, projectID string, targetCount int) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "project.restore",
		trace.WithAttributes(
			AttrProjectID.String(projectID),
			attribute.Int("restore.target.count", targetCount),
			AttrOperation.String("restore"),
		),
	)
}

// StartGraphResolveSpan starts the span covering one target environment's resolution.
func StartGraphResolveSpan(ctx context.Context, projectID, target string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "graph.resolve",
		trace.WithAttributes(
			AttrProjectID.String(projectID),
			AttrTarget.String(target),
			AttrOperation.String("resolve"),
		),
	)
}

// StartSourceRequestSpan starts a span for a call against a source repository.
func StartSourceRequestSpan(ctx context.Context, source, operation, packageID string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "source."+operation,
		trace.WithAttributes(
			AttrSource.String(source),
			AttrPackageID.String(packageID),
			AttrOperation.String(operation),
		),
	)
}

// StartLockFileWriteSpan starts a span for persisting a lock artifact.
func StartLockFileWriteSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return StartSpan(ctx, TracerName, "lockfile.write",
		trace.WithAttributes(
			attribute.String("lockfile.path", path),
			AttrOperation.String("write"),
		),
	)
}

// RecordNoOp marks the current span as a no-op restore.
func RecordNoOp(ctx context.Context, noop bool) {
	SetAttributes(ctx, AttrNoOp.Bool(noop))
}

// RecordRetry records a retry attempt on the current span
func RecordRetry(ctx context.Context, attempt int, err error) {
	AddEvent(ctx, "retry",
		AttrRetryAttempt.Int(attempt),
		attribute.String("retry.error", err.Error()),
	)
}

// EndSpanWithError ends a span with an error status
func EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
