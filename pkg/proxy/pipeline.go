package proxy

import (
	"context"

	"mercator-hq/tlsrelay/pkg/telemetry/tracing"
)

// Stage is one step of a connection pipeline.
type Stage struct {
	// Name identifies the stage in logs and span names.
	Name string

	// State is entered before the stage runs.
	State State

	// Outcome labels the connection when the stage fails.
	Outcome string

	Run func(ctx context.Context, s *Session) error
}

// Pipeline runs its stages in order and stops at the first failure.
type Pipeline struct {
	stages []Stage
	tracer *tracing.Tracer
}

// Run executes the pipeline for one session. A failed stage is reported as
// a *StageError.
func (p *Pipeline) Run(ctx context.Context, s *Session) error {
	for _, stage := range p.stages {
		s.setState(stage.State)

		stageCtx, span := p.tracer.StartStage(ctx, stage.Name)
		err := stage.Run(stageCtx, s)
		if err != nil {
			tracing.SetErrorAttributes(span, err, stage.Outcome)
		} else {
			tracing.SetStatus(span, nil)
		}
		span.End()

		if err != nil {
			return &StageError{Stage: stage.Name, Outcome: stage.Outcome, Err: err}
		}
	}
	return nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// PipelineBuilder assembles the stage list. Build returns an independent
// pipeline, so one builder serves every connection of a channel.
type PipelineBuilder struct {
	stages []Stage
	tracer *tracing.Tracer
}

// NewPipelineBuilder returns an empty builder.
func NewPipelineBuilder() *PipelineBuilder {
	return &PipelineBuilder{}
}

// WithTracer sets the tracer used for stage spans.
func (b *PipelineBuilder) WithTracer(t *tracing.Tracer) *PipelineBuilder {
	b.tracer = t
	return b
}

// Add appends a stage.
func (b *PipelineBuilder) Add(stage Stage) *PipelineBuilder {
	b.stages = append(b.stages, stage)
	return b
}

// Build returns the pipeline.
func (b *PipelineBuilder) Build() *Pipeline {
	stages := make([]Stage, len(b.stages))
	copy(stages, b.stages)
	return &Pipeline{stages: stages, tracer: b.tracer}
}
