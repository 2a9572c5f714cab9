package ussd

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriageEndToEnd(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "CON Enter your age (1-120):", f.dial(t, "s1", "1").String())
	assert.Equal(t, "CON Select your gender:\n1. Male\n2. Female\n3. Other", f.dial(t, "s1", "1", "30").String())
	assert.Equal(t, "CON Describe your main symptom (e.g. fever, headache, cough):", f.dial(t, "s1", "1", "30", "1").String())
	assert.Equal(t, "CON How many days have you had this symptom? (1-365)", f.dial(t, "s1", "1", "30", "1", "fever").String())
	assert.Equal(t, "CON Confirm your details:\nAge: 30\nGender: Male\nSymptom: fever\nDuration: 3 days\n1. Confirm\n2. Cancel",
		f.dial(t, "s1", "1", "30", "1", "fever", "3").String())
	assert.Equal(t, 0, f.ai.CallCount())

	resp := f.dial(t, "s1", "1", "30", "1", "fever", "3", "1")
	assert.Equal(t, "END Assessment complete.\nDrink plenty of fluids and rest.\n📩 Full advice sent via SMS.", resp.String())

	require.Equal(t, 1, f.ai.CallCount())
	call := f.ai.Calls[0]
	assert.Contains(t, call.UserPrompt, "30-year-old male")
	assert.Contains(t, call.UserPrompt, "fever for 3 days")

	msgs := f.sms.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, testPhone, msgs[0].To)
	assert.True(t, strings.HasPrefix(msgs[0].Body, "AfyaLink Triage: Drink plenty of fluids"))
	assert.LessOrEqual(t, utf8.RuneCountInString(msgs[0].Body), 160)
}

func TestTriageAgeBounds(t *testing.T) {
	f := newFixture(t)
	for _, age := range []string{"1", "120"} {
		assert.Equal(t, screenGenderPrompt, f.dial(t, "s1", "1", age), "age %s", age)
	}
	for _, age := range []string{"0", "121", "-5", "abc", "", "2.5"} {
		assert.Equal(t, "END Invalid age. Please enter a number between 1 and 120.", f.dial(t, "s1", "1", age).String(), "age %q", age)
	}
}

func TestTriageValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name  string
		steps []string
		want  Response
	}{
		{"bad gender", []string{"1", "30", "4"}, screenInvalidGender},
		{"bad age revalidated deeper", []string{"1", "0", "1", "fever"}, screenInvalidAge},
		{"symptom too short", []string{"1", "30", "2", "!!"}, screenSymptomShort},
		{"symptom only punctuation stripped", []string{"1", "30", "2", "#a$"}, screenSymptomShort},
		{"duration zero", []string{"1", "30", "2", "fever", "0"}, screenInvalidDuration},
		{"duration too long", []string{"1", "30", "2", "fever", "366"}, screenInvalidDuration},
		{"cancel", []string{"1", "30", "2", "fever", "3", "2"}, screenTriageCancelled},
		{"bad confirm", []string{"1", "30", "2", "fever", "3", "3"}, screenInvalidChoice},
		{"too deep", []string{"1", "30", "2", "fever", "3", "1", "1"}, screenInvalidChoice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.dial(t, "s1", tt.steps...))
		})
	}
	assert.Equal(t, 0, f.ai.CallCount())
}

func TestTriageSummaryUsesSanitizedSymptom(t *testing.T) {
	f := newFixture(t)
	resp := f.dial(t, "s1", "1", "45", "2", "  sore   throat!! <b>", "1")
	assert.Contains(t, resp.Text, "Symptom: sore throat b\n")
	assert.Contains(t, resp.Text, "Gender: Female")
	assert.Contains(t, resp.Text, "Duration: 1 day\n")
}

func TestTriageAIFailure(t *testing.T) {
	f := newFixture(t)
	f.ai.Err = errors.New("upstream 500")

	resp := f.dial(t, "s1", "1", "30", "1", "fever", "3", "1")
	assert.Equal(t, screenAIUnavailable, resp)
	assert.Equal(t, 1, f.ai.CallCount())
	assert.Empty(t, f.sms.Messages())
}

func TestTriageAITimeoutNotRetried(t *testing.T) {
	f := newFixture(t, WithAITimeout(20*time.Millisecond))
	f.ai.Delay = time.Second

	start := time.Now()
	resp := f.dial(t, "s1", "1", "30", "1", "fever", "3", "1")
	assert.Equal(t, screenAIUnavailable, resp)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 1, f.ai.CallCount())
}

func TestTriageEmptyAdvice(t *testing.T) {
	f := newFixture(t)
	f.ai.Response = "   "
	assert.Equal(t, screenAIUnavailable, f.dial(t, "s1", "1", "30", "1", "fever", "3", "1"))
}

func TestTriageSMSFailureStillCompletes(t *testing.T) {
	f := newFixture(t)
	f.sms.Err = errors.New("gateway down")
	resp := f.dial(t, "s1", "1", "30", "1", "fever", "3", "1")
	assert.False(t, resp.Continue)
	assert.True(t, strings.HasPrefix(resp.Text, "Assessment complete."))
}

func TestScreenAdvice(t *testing.T) {
	assert.Equal(t, "Rest well.", screenAdvice("Rest well. Drink water."))
	long := strings.Repeat("a", 150)
	got := screenAdvice(long)
	assert.Equal(t, maxScreenAdvice, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}
