// Package rules is the tier-1 decision layer: deterministic functions that
// cost nothing to run.
//
//   - AssignTrack maps a diagnostic result to a study track through an
//     ordered decision list.
//   - NeedsEscalation flags struggling learners for a model call.
//   - CheckInterventionTrigger and FindIntervention swap in remedial content
//     after a failing score.
//   - TransitionStreak advances the daily streak state machine.
//
// Nothing in this package holds state or performs I/O except through the
// TaskFinder a caller passes in.
package rules
