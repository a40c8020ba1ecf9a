package escalation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"momentum-hq/engine/pkg/rules"
)

// errInvalidResponse marks a model reply that could not be used.
var errInvalidResponse = errors.New("invalid model response")

const taskSelectionPrompt = `You are an IELTS tutor selecting the next practice task.

User's recent performance:
%s

Weak areas: %s

Available task IDs: %s

Select the BEST task ID for this user based on their weaknesses.
Respond with ONLY the task ID, nothing else.`

const weeklyReportPrompt = `Generate a personalized weekly progress report for an IELTS student.

Week %d Summary:
- Tasks completed: %d
- Practice time: %d minutes
- Learning Velocity Score: %.2f
- Completion Rate: %.1f%%

Module Performance:
%s

Provide:
1. Key achievements (2-3 sentences, be specific and encouraging)
2. Areas needing focus (identify 1-2 specific modules)
3. Actionable recommendations for next week (3 bullet points)

Keep it motivating, specific, and under 200 words.`

const diagnosisPrompt = `Analyze why this IELTS student is struggling and recommend intervention.

Recent Performance:
%s

Current Accuracy: %.1f%%
Module: %s
Consecutive Failures: %d

Diagnose the specific issue and recommend ONE intervention from:
- strategy_video: For technique/approach issues
- targeted_practice: For skill gaps
- simplified_exercise: For confidence building

Respond in JSON format:
{"diagnosis": "brief explanation", "intervention_type": "strategy_video|targeted_practice|simplified_exercise", "specific_recommendation": "detailed suggestion"}`

const templateReport = `## Week %d Summary

**Your Progress:**
- Tasks completed: %d
- Practice time: %d minutes
- Completion rate: %.1f%%

**Keep Going!**
Consistency is key to IELTS success. Aim for daily practice to maintain momentum.
`

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- none recorded"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

func commaList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func buildTaskSelectionPrompt(in SelectTaskInput) string {
	ids := make([]string, len(in.Candidates))
	for i, c := range in.Candidates {
		ids[i] = c.ID
	}
	return fmt.Sprintf(taskSelectionPrompt, bulletList(in.RecentTasks), commaList(in.WeakModules), commaList(ids))
}

func buildWeeklyReportPrompt(in ReportInput) string {
	modules := make([]string, 0, len(in.ModulePerformance))
	for m := range in.ModulePerformance {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	lines := make([]string, len(modules))
	for i, m := range modules {
		lines[i] = fmt.Sprintf("%s: %.1f%%", m, in.ModulePerformance[m])
	}
	return fmt.Sprintf(weeklyReportPrompt, in.WeekNumber, in.TasksCompleted, in.PracticeMinutes,
		in.LVS, in.CompletionRate, bulletList(lines))
}

func buildDiagnosisPrompt(in DiagnosisInput) string {
	return fmt.Sprintf(diagnosisPrompt, bulletList(in.RecentTasks), in.Accuracy, in.Module, in.ConsecutiveFailures)
}

// TemplateReport renders the free weekly report used when no model report
// is available.
func TemplateReport(in ReportInput) Report {
	week := in.WeekNumber
	if week <= 0 {
		week = 1
	}
	return Report{Markdown: fmt.Sprintf(templateReport, week, in.TasksCompleted, in.PracticeMinutes, in.CompletionRate)}
}

// ruleTaskChoice is the tier-1 selection: the first candidate on a weak
// module, or the first candidate.
func ruleTaskChoice(in SelectTaskInput) TaskChoice {
	choice := TaskChoice{Reasoning: "Rule-based selection"}
	if len(in.Candidates) == 0 {
		return choice
	}
	choice.TaskID = in.Candidates[0].ID
	for _, c := range in.Candidates {
		for _, m := range in.WeakModules {
			if c.Module == m {
				choice.TaskID = c.ID
				return choice
			}
		}
	}
	return choice
}

// ruleDiagnosis is the fallback recommendation.
func ruleDiagnosis(in DiagnosisInput) Diagnosis {
	return Diagnosis{
		Diagnosis:        fmt.Sprintf("Recent %s accuracy is below the passing threshold", in.Module),
		InterventionType: InterventionTargetedPractice,
		Recommendation:   fmt.Sprintf("Complete a targeted %s practice set before continuing the track", in.Module),
	}
}

// parseTaskChoice accepts a reply naming exactly one candidate ID.
func parseTaskChoice(candidates []rules.TaskRef) func(string) (TaskChoice, error) {
	return func(reply string) (TaskChoice, error) {
		id := strings.Trim(strings.TrimSpace(reply), "\"'`.")
		for _, c := range candidates {
			if c.ID == id {
				return TaskChoice{TaskID: id, Reasoning: "AI-selected based on weakness analysis"}, nil
			}
		}
		return TaskChoice{}, fmt.Errorf("%w: %q is not a candidate task", errInvalidResponse, truncate(reply, 64))
	}
}

func parseReport(reply string) (Report, error) {
	text := strings.TrimSpace(reply)
	if text == "" {
		return Report{}, fmt.Errorf("%w: empty report", errInvalidResponse)
	}
	return Report{Markdown: text}, nil
}

// parseDiagnosis extracts the JSON object from the reply. Models sometimes
// wrap it in prose or a code fence.
func parseDiagnosis(reply string) (Diagnosis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return Diagnosis{}, fmt.Errorf("%w: no JSON object in reply", errInvalidResponse)
	}

	var d Diagnosis
	if err := json.Unmarshal([]byte(reply[start:end+1]), &d); err != nil {
		return Diagnosis{}, fmt.Errorf("%w: %v", errInvalidResponse, err)
	}
	switch d.InterventionType {
	case InterventionStrategyVideo, InterventionTargetedPractice, InterventionSimplifiedExercise:
	default:
		return Diagnosis{}, fmt.Errorf("%w: unknown intervention type %q", errInvalidResponse, d.InterventionType)
	}
	if strings.TrimSpace(d.Diagnosis) == "" {
		return Diagnosis{}, fmt.Errorf("%w: empty diagnosis", errInvalidResponse)
	}
	return d, nil
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
