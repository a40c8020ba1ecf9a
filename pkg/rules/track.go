package rules

import "fmt"

// Rule numbers reported by AssignTrackExplain, in evaluation order.
const (
	RuleExamImminent = iota + 1
	RuleHighScore
	RuleLowScore
	RuleWeakModule
	RuleAvailability
	RuleTimeline
)

// AssignTrack maps a diagnostic result to a study track. Rules are evaluated
// in order and the first match wins. The result depends only on in.
func AssignTrack(in TrackInput) (TrackID, error) {
	track, _, err := AssignTrackExplain(in)
	return track, err
}

// AssignTrackExplain is AssignTrack that also reports which rule fired.
func AssignTrackExplain(in TrackInput) (TrackID, int, error) {
	if err := validateTrackInput(in); err != nil {
		return "", 0, err
	}

	if in.DaysUntilExam < 21 {
		if in.TestType == TestAcademic {
			return TrackAcademicFastTrack, RuleExamImminent, nil
		}
		return TrackGeneralFastTrack, RuleExamImminent, nil
	}

	if in.DiagnosticScore >= 6.5 {
		return TrackSprint, RuleHighScore, nil
	}
	if in.DiagnosticScore < 5.5 {
		return TrackFoundation, RuleLowScore, nil
	}

	switch in.WeakModule {
	case ModuleWriting:
		return TrackWritingFocus, RuleWeakModule, nil
	case ModuleSpeaking:
		return TrackSpeakingFocus, RuleWeakModule, nil
	}

	switch {
	case in.DailyMinutes < 20 && in.WeekendAvailable:
		return TrackWeekendWarrior, RuleAvailability, nil
	case in.DailyMinutes >= 90:
		return TrackIntensive, RuleAvailability, nil
	case in.DailyMinutes < 30:
		return TrackProfessionalMarathon, RuleAvailability, nil
	}

	switch {
	case in.DaysUntilExam > 90:
		return TrackFoundation, RuleTimeline, nil
	case in.DaysUntilExam > 45:
		return TrackBalanced, RuleTimeline, nil
	default:
		return TrackProfessionalMarathon, RuleTimeline, nil
	}
}

func validateTrackInput(in TrackInput) error {
	if in.DiagnosticScore < 0 || in.DiagnosticScore > 9 {
		return fmt.Errorf("%w: diagnostic score %v outside 0-9", ErrValidation, in.DiagnosticScore)
	}
	if in.DaysUntilExam < 0 {
		return fmt.Errorf("%w: days until exam cannot be negative", ErrValidation)
	}
	if in.DailyMinutes < 0 {
		return fmt.Errorf("%w: daily minutes cannot be negative", ErrValidation)
	}
	if in.TestType != TestAcademic && in.TestType != TestGeneral {
		return fmt.Errorf("%w: test type %q must be academic or general", ErrValidation, in.TestType)
	}
	if in.WeakModule != "" && !ValidModule(in.WeakModule) {
		return fmt.Errorf("%w: unknown module %q", ErrValidation, in.WeakModule)
	}
	return nil
}
