package driver

import "time"

// Stage describes a high-level pipeline phase.
type Stage string

const (
	StageIndex   Stage = "index"
	StageModel   Stage = "model"
	StageResolve Stage = "resolve"
	StagePlan    Stage = "plan"
	StageEmit    Stage = "emit"
)

// Stages lists the pipeline phases in execution order.
var Stages = []Stage{StageIndex, StageModel, StageResolve, StagePlan, StageEmit}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a client module (or for the whole run when
// Module is empty).
type Event struct {
	Module  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. OnEvent may be called from
// indexing goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

type nopSink struct{}

func (nopSink) OnEvent(Event) {}
