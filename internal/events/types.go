// Package events names the agents and stages that appear on the progress
// bus and provides the configured bus implementation.
package events

import "github.com/papertrans/papertrans/internal/events/bus"

// Canonical agent names. Every event on the bus carries one of these.
const (
	AgentSystem       = bus.AgentSystem
	AgentOrchestrator = bus.AgentOrchestrator
	AgentTerminology  = "terminology"
	AgentOCR          = "ocr"
	AgentTranslation  = "translation"
	AgentReview       = "review"
	AgentIndex        = "index"
)

// Stream-level stages emitted by the runtime itself.
const (
	StageConnected = bus.StageConnected
	StageHeartbeat = bus.StageHeartbeat
	StageComplete  = bus.StageComplete
	StageError     = bus.StageError
	StageFailed    = "failed"
)

// Pipeline stages emitted by agents while a task runs.
const (
	StageStarted     = "started"
	StageAnalyzing   = "analyzing"
	StageParsing     = "parsing"
	StageOCR         = "ocr"
	StageStitching   = "stitching"
	StageTranslating = "translating"
	StageRetrying    = "retrying"
	StageReviewing   = "reviewing"
	StageCompleted   = "completed"
	StageSkipped     = "skipped"
)

// Orchestrator phase names. Phase boundary events carry these as stages;
// the detail's status field distinguishes start from completion.
const (
	PhaseTerminology = "terminology"
	PhaseOCR         = "ocr"
	PhaseTranslation = "translation"
	PhaseReview      = "review"
	PhaseAutoFix     = "auto_fix"
	PhaseIndexing    = "indexing"
	PhaseSaving      = "saving"
)
