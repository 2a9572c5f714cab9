package ussd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/afyalink/afyalink/internal/models"
	"github.com/afyalink/afyalink/internal/notify"
)

const triageSystemPrompt = `You are AfyaLink, a health triage assistant for patients in Kenya using basic phones.
Give brief, practical first-line advice for the symptom described and say clearly when the patient should visit a health facility.
Do not give a diagnosis or prescribe prescription-only medicine.
Reply in plain text, at most two short sentences, no lists or markdown.`

// maxScreenAdvice caps the advice echoed on the USSD screen; the SMS carries the rest.
const maxScreenAdvice = 100

var (
	screenAgePrompt       = Conf("Enter your age (%d-%d):", MinAge, MaxAge)
	screenGenderPrompt    = Con("Select your gender:\n1. Male\n2. Female\n3. Other")
	screenSymptomPrompt   = Con("Describe your main symptom (e.g. fever, headache, cough):")
	screenDurationPrompt  = Conf("How many days have you had this symptom? (%d-%d)", MinDurationDays, MaxDurationDays)
	screenInvalidAge      = Endf("Invalid age. Please enter a number between %d and %d.", MinAge, MaxAge)
	screenInvalidGender   = End("Invalid gender selection. Please try again.")
	screenSymptomShort    = End("Symptom description too short. Please try again.")
	screenInvalidDuration = Endf("Invalid duration. Please enter a number between %d and %d.", MinDurationDays, MaxDurationDays)
	screenAIUnavailable   = End("Assessment service is unavailable right now. Please try again later or visit the nearest health facility.")
	screenTriageCancelled = End("Triage assessment cancelled.")
)

// triageAnswers holds the validated triage answers present in a path.
type triageAnswers struct {
	age      int
	gender   models.Gender
	symptom  string
	duration int
}

// parseTriage validates every answer present in path (tokens 1..4) and returns
// the terminal screen for the first bad one.
func parseTriage(path StepPath) (triageAnswers, *Response) {
	var (
		t   triageAnswers
		err error
	)
	if path.Len() > 1 {
		if t.age, err = ValidateAge(path.At(1)); err != nil {
			return t, &screenInvalidAge
		}
	}
	if path.Len() > 2 {
		if t.gender, err = models.ParseGender(path.At(2)); err != nil {
			return t, &screenInvalidGender
		}
	}
	if path.Len() > 3 {
		if t.symptom, err = SanitizeSymptom(path.At(3)); err != nil {
			return t, &screenSymptomShort
		}
	}
	if path.Len() > 4 {
		if t.duration, err = ValidateDuration(path.At(4)); err != nil {
			return t, &screenInvalidDuration
		}
	}
	return t, nil
}

func (t triageAnswers) durationText() string {
	if t.duration == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", t.duration)
}

func (r *Router) triage(ctx context.Context, req Request) Response {
	path := req.Path
	if path.Len() > 6 {
		return screenInvalidChoice
	}
	answers, bad := parseTriage(path)
	if bad != nil {
		return *bad
	}

	switch path.Len() {
	case 1:
		return screenAgePrompt
	case 2:
		return screenGenderPrompt
	case 3:
		return screenSymptomPrompt
	case 4:
		return screenDurationPrompt
	case 5:
		return Conf("Confirm your details:\nAge: %d\nGender: %s\nSymptom: %s\nDuration: %s\n1. Confirm\n2. Cancel",
			answers.age, answers.gender.Label(), answers.symptom, answers.durationText())
	}

	confirmed, err := parseConfirm(path.At(5))
	if err != nil {
		return screenInvalidChoice
	}
	if !confirmed {
		return screenTriageCancelled
	}
	return r.assess(ctx, req.Phone, answers)
}

// assess makes the single bounded AI call for a confirmed triage.
func (r *Router) assess(ctx context.Context, phone string, t triageAnswers) Response {
	aiCtx, cancel := context.WithTimeout(ctx, r.aiTimeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Patient: %d-year-old %s. Main symptom: %s for %s. What should they do?",
		t.age, strings.ToLower(t.gender.Label()), t.symptom, t.durationText())
	advice, err := r.ai.GeneratePromptWithContext(aiCtx, triageSystemPrompt, userPrompt)
	advice = strings.TrimSpace(advice)
	if err != nil || advice == "" {
		slog.Error("Router.assess: assessment failed", "phone", phone, "error", err, "empty", advice == "")
		return screenAIUnavailable
	}

	if err := r.notifier.TriageAdvice(ctx, phone, advice); err != nil {
		slog.Warn("Router.assess: advice SMS not sent", "phone", phone, "error", err)
	}
	return Endf("Assessment complete.\n%s\n📩 Full advice sent via SMS.", screenAdvice(advice))
}

// screenAdvice returns the first sentence of advice, capped for the USSD screen.
func screenAdvice(advice string) string {
	advice = strings.Join(strings.Fields(advice), " ")
	if i := strings.Index(advice, ". "); i >= 0 {
		advice = advice[:i+1]
	}
	return notify.Truncate(advice, maxScreenAdvice)
}
