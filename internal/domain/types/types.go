// Package types contains common types used across the application
package types

// Condition is the experiment variant a participant is assigned to.
type Condition string

const (
	ConditionControl   Condition = "control"
	ConditionTreatment Condition = "treatment"
)

// Conditions lists every variant in a fixed order.
func Conditions() []Condition {
	return []Condition{ConditionControl, ConditionTreatment}
}

// Valid reports whether c is a known variant.
func (c Condition) Valid() bool {
	return c == ConditionControl || c == ConditionTreatment
}

// Step names a screen of the study flow.
type Step string

const (
	StepStart        Step = "start"
	StepPreSurvey    Step = "pre_survey"
	StepLoading      Step = "loading"
	StepStarting     Step = "starting"
	StepAmount       Step = "amount"
	StepBudget       Step = "budget"
	StepAttributes   Step = "attributes"
	StepGrind        Step = "grind"
	StepReviewGate   Step = "review_gate"
	StepProductCards Step = "product_cards"
	StepTransition   Step = "transition"
	StepFinalGuide   Step = "final_guide"
	StepChoice       Step = "choice"
	StepPostSurvey   Step = "post_survey"
	StepDebrief      Step = "debrief"
)

// Steps returns every step in flow order.
func Steps() []Step {
	return []Step{
		StepStart, StepPreSurvey, StepLoading, StepStarting,
		StepAmount, StepBudget, StepAttributes, StepGrind,
		StepReviewGate, StepProductCards, StepTransition,
		StepFinalGuide, StepChoice, StepPostSurvey, StepDebrief,
	}
}

// RequirementSteps returns the requirement dimensions in the order they are asked.
func RequirementSteps() []Step {
	return []Step{StepAmount, StepBudget, StepAttributes, StepGrind}
}

// IsRequirement reports whether s asks for a shopping requirement.
func (s Step) IsRequirement() bool {
	switch s {
	case StepAmount, StepBudget, StepAttributes, StepGrind:
		return true
	default:
		return false
	}
}

// RatingKind is a participant's judgement on one product card.
type RatingKind string

const (
	RatingInterested    RatingKind = "interested"
	RatingNotInterested RatingKind = "not_interested"
)

// Valid reports whether k is a known rating.
func (k RatingKind) Valid() bool {
	return k == RatingInterested || k == RatingNotInterested
}

// EventType tags a telemetry event. Unknown values are accepted.
type EventType string

// Emitted by the server alongside a session mutation.
const (
	EventSessionCreated      EventType = "session_created"
	EventConsentGiven        EventType = "consent_given"
	EventConsentDeclined     EventType = "consent_declined"
	EventPreSurveySubmitted  EventType = "pre_survey_submitted"
	EventRequirementsUpdated EventType = "requirements_updated"
	EventProductRated        EventType = "product_rated"
	EventGuideTimeRecorded   EventType = "guide_time_recorded"
	EventChoiceMade          EventType = "choice_made"
	EventPostSurveySubmitted EventType = "post_survey_submitted"
	EventStudyCompleted      EventType = "study_completed"
)

// Emitted by the client through the generic event endpoint.
const (
	EventStepEntered         EventType = "step_entered"
	EventRequirementAnswered EventType = "requirement_answered"
	EventRequirementSkipped  EventType = "requirement_skipped"
	EventProductCardsSkipped EventType = "product_cards_skipped"
	EventGuideViewed         EventType = "guide_viewed"
	EventStudyAborted        EventType = "study_aborted"
)
