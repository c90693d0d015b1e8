// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"context"
	"time"
)

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, sessionID, stage string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
	// No-op
}

type labelsKey struct{}

// Labels identify the pipeline position of an LLM request for metrics.
type Labels struct {
	SessionID string
	Stage     string
}

// WithLabels attaches session and stage labels to the context so the
// metrics middleware can attribute the request.
func WithLabels(ctx context.Context, sessionID, stage string) context.Context {
	return context.WithValue(ctx, labelsKey{}, Labels{SessionID: sessionID, Stage: stage})
}

// LabelsFrom extracts request labels from the context, returning zero
// values when none are attached.
func LabelsFrom(ctx context.Context) Labels {
	if labels, ok := ctx.Value(labelsKey{}).(Labels); ok {
		return labels
	}
	return Labels{}
}
