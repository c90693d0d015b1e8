package pipeline

import (
	"context"
	"strings"

	"messagecraft/pkg/templates"
)

// Static fallbacks for messaging sub-prompts. Generic but serviceable so
// a run never ships an empty section.
var (
	fallbackValueProp = "We help our customers get measurable results through a proven, outcome-focused approach."
	fallbackPitch     = "We work with organizations that are tired of vague promises. Our approach focuses on outcomes you can measure, delivered by a team that knows your space."
	fallbackTaglines  = []string{
		"Results you can measure",
		"Built around your outcomes",
		"Clarity over complexity",
		"The dependable choice",
		"Proof, not promises",
	}
	fallbackDifferentiators = []string{
		"Outcome-focused delivery with measurable milestones",
		"Deep experience with customers like you",
		"Transparent process from first call to final result",
	}
)

// RunMessaging generates the core messaging framework: value proposition,
// elevator pitch, taglines, and differentiators via individual prompts,
// plus tone guidelines and key messages assembled from analysis results.
func (e *Executor) RunMessaging(ctx context.Context, st *State) {
	data := templateData(st)
	var degraded []string

	valueProp, fell := e.RunText(ctx, StageMessaging, templates.ValuePropositionTemplate, data, fallbackValueProp)
	if fell {
		degraded = append(degraded, "value_proposition")
	}
	pitch, fell := e.RunText(ctx, StageMessaging, templates.ElevatorPitchTemplate, data, fallbackPitch)
	if fell {
		degraded = append(degraded, "elevator_pitch")
	}

	taglineText, fell := e.RunText(ctx, StageMessaging, templates.TaglinesTemplate, data, "")
	if fell {
		degraded = append(degraded, "tagline_options")
	}
	taglines := parseList(taglineText, 5, fallbackTaglines)

	diffText, fell := e.RunText(ctx, StageMessaging, templates.DifferentiatorsTemplate, data, "")
	if fell {
		degraded = append(degraded, "key_differentiators")
	}
	differentiators := parseList(diffText, 3, fallbackDifferentiators)

	st.Messaging = Result{
		"value_proposition":   valueProp,
		"elevator_pitch":      pitch,
		"tagline_options":     toAny(taglines),
		"key_differentiators": toAny(differentiators),
		"tone_guidelines":     toneGuidelines(st),
		"key_messages":        keyMessages(st),
	}
	if len(degraded) > 0 {
		st.Messaging["fallback_reason"] = "static fallback for " + strings.Join(degraded, ", ")
	}
}

// toneGuidelines derives voice guidance from the emotional analysis.
func toneGuidelines(st *State) map[string]any {
	guidelines := map[string]any{
		"voice":     "Confident and direct without being aggressive",
		"style":     "Plain language, concrete claims, no jargon",
		"emphasis":  "Outcomes and proof over features",
		"avoid":     "Superlatives without evidence, vague industry buzzwords",
		"formality": "Professional but conversational",
		"sentence":  "Short sentences, active voice",
	}
	if st.Emotional != nil {
		if emotions := toStrings(st.Emotional["primary_emotions"]); len(emotions) > 0 {
			guidelines["emotional_register"] = emotions[0]
		}
	}
	return guidelines
}

// keyMessages assembles the core messages from positioning proof points,
// falling back to a static set when positioning ran on placeholders.
func keyMessages(st *State) []any {
	if st.Positioning != nil {
		if points := toStrings(st.Positioning["proof_points"]); len(points) >= 3 {
			return toAny(points)
		}
	}
	return []any{
		"We deliver results you can measure, not promises you have to take on faith",
		"Our process is transparent from the first conversation",
		"We know your space and the problems that come with it",
	}
}

func toAny(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
