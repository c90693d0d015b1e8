// Package pipeline implements the multi-stage playbook generation flow:
// analysis stages feeding messaging and content generation, followed by
// quality scoring and a bounded critique/refine/meta-review reflection loop.
package pipeline

import "time"

// Stage names, used for metrics labels and progress tracking.
const (
	StageDiscovery     = "discovery"
	StageCompetitors   = "competitors"
	StagePositioning   = "positioning"
	StageTrust         = "trust"
	StageEmotional     = "emotional"
	StageSocialProof   = "social_proof"
	StageMessaging     = "messaging"
	StageContent       = "content"
	StageQualityReview = "quality_review"
	StageCritique      = "critique"
	StageRefinement    = "refinement"
	StageMetaReview    = "meta_review"
	StageFinalAssembly = "final_assembly"
)

// Defaults for the reflection loop. Config may override both.
const (
	DefaultQualityThreshold    = 8.0
	DefaultMaxReflectionCycles = 3
)

// Result is a parsed stage output. Values mirror the JSON the model
// returned (or the placeholder substituted for it).
type Result map[string]any

// HistoryEntry records one completed reflection cycle.
type HistoryEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	RefinementAreas []string  `json:"refinement_areas"`
	Cycle           int       `json:"cycle"`
	QualityScore    float64   `json:"quality_score"`
}

// State carries everything produced during a generation run. Stages read
// prior results from it and write their own; the reflection loop mutates
// the quality and cycle fields until it terminates.
type State struct {
	SessionID           string
	BusinessDescription string
	CompanyName         string
	Industry            string
	Questionnaire       string

	QualityThreshold    float64
	MaxReflectionCycles int

	// Analysis stage outputs
	Discovery   Result
	Competitors Result
	Positioning Result
	Trust       Result
	Emotional   Result
	SocialProof Result

	// Generation outputs
	Messaging Result
	Content   Result

	// Quality and reflection
	QualityReport      Result
	CurrentQuality     float64
	NeedsRefinement    bool
	ReflectionCycle    int
	CritiquePoints     []string
	RefinementAreas    []string
	ReflectionFeedback Result
	ReflectionHistory  []HistoryEntry
	MetaReview         Result

	// Messages is a diagnostic log of per-stage outcomes. Nothing reads
	// it back during the run.
	Messages []string

	// FinalOutput is always set by final assembly, even when every stage
	// ran on placeholder content.
	FinalOutput Result
}

// AddMessage appends a diagnostic note about a completed stage.
func (s *State) AddMessage(msg string) {
	s.Messages = append(s.Messages, msg)
}

// NewState creates a run state with reflection defaults applied.
func NewState(sessionID, businessDescription, questionnaire string) *State {
	return &State{
		SessionID:           sessionID,
		BusinessDescription: businessDescription,
		Questionnaire:       questionnaire,
		QualityThreshold:    DefaultQualityThreshold,
		MaxReflectionCycles: DefaultMaxReflectionCycles,
	}
}

// UsedFallback reports whether any stage result carries a fallback marker.
func (s *State) UsedFallback() bool {
	for _, r := range []Result{
		s.Discovery, s.Competitors, s.Positioning,
		s.Trust, s.Emotional, s.SocialProof,
		s.Messaging, s.Content,
	} {
		if r == nil {
			continue
		}
		if _, ok := r["fallback_reason"]; ok {
			return true
		}
	}
	return false
}
