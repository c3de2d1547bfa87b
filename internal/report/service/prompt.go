package service

import (
	"fmt"
	"strings"

	judgeRepo "intervue/internal/judge/repository"
	questionRepo "intervue/internal/question/repository"
)

const (
	// transcriptLimit bounds how much conversation reaches the
	// evaluation model. Over the limit we keep the opening and the
	// ending: the framing and the wrap-up carry the most signal.
	transcriptLimit = 80_000

	transcriptGapMarker = "\n\n[... transcript truncated ...]\n\n"

	// maxPromptSubmissions and submissionCharCap keep the submission
	// history section bounded.
	maxPromptSubmissions = 5
	submissionCharCap    = 1500

	hiddenPlaceholder = "[Hidden]"
)

const systemPrompt = `You are an experienced technical interviewer evaluating a timed coding interview. Base every judgement strictly on the material provided. Respond with a single JSON object with keys "problemSolving", "codeQuality", "communication", "debugging" (each an object with integer "score" from 1 to 5, "evidence", and "reasoning"), "recommendation" (one of "Strong Hire", "Hire", "Maybe", "No Hire"), "summary", and "submissionComments" (an array of objects with integer "submissionNumber" and "comment", one per submission in the history).`

// TruncateTranscript caps the transcript, keeping equal head and tail
// halves around a gap marker.
func TruncateTranscript(transcript string) string {
	if len(transcript) <= transcriptLimit {
		return transcript
	}
	half := transcriptLimit / 2
	return transcript[:half] + transcriptGapMarker + transcript[len(transcript)-half:]
}

func buildUserPrompt(question questionRepo.Question, transcript, finalCode string, outcomes []TestOutcome, submissions []judgeRepo.Submission) string {
	var b strings.Builder

	passed, failed, total := aggregateOutcomes(outcomes)

	b.WriteString("# Question\n")
	fmt.Fprintf(&b, "Title: %s (difficulty: %s)\n\n", question.Title, question.Difficulty)
	b.WriteString(question.DescriptionMD)
	b.WriteString("\n\n# Final code\n```\n")
	b.WriteString(finalCode)
	b.WriteString("\n```\n\n# Test results\n")
	fmt.Fprintf(&b, "%d passed, %d failed, %d total\n", passed, failed, total)
	for _, outcome := range outcomes {
		fmt.Fprintf(&b, "- case %d: %s", outcome.TestCaseID, outcome.Status)
		if outcome.Hidden {
			b.WriteString(" (hidden)")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n# Submission history\n")
	history := submissions
	if len(history) > maxPromptSubmissions {
		history = history[len(history)-maxPromptSubmissions:]
	}
	if len(history) == 0 {
		b.WriteString("No code was ever submitted to the judge.\n")
	}
	for index, submission := range history {
		code := submission.Code
		if len(code) > submissionCharCap {
			code = code[:submissionCharCap] + "..."
		}
		fmt.Fprintf(&b, "## Attempt %d (%ds into the session, %s)\n```\n%s\n```\n",
			index+1, submission.ElapsedSeconds, submission.Language, code)
	}

	b.WriteString("\n# Transcript\n")
	b.WriteString(TruncateTranscript(transcript))
	return b.String()
}

func aggregateOutcomes(outcomes []TestOutcome) (passed, failed, total int) {
	for _, outcome := range outcomes {
		total++
		switch outcome.Status {
		case TestStatusPassed:
			passed++
		case TestStatusFailed:
			failed++
		}
	}
	return passed, failed, total
}
