package ussd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/messaging"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/testutil"
	"github.com/afyalink/afyalink/internal/twiliosms"
)

const careerReply = "Join Kibera Digital Hub for coding basics. Enrol at Nairobi Technical TVET for electrical work. Consider software development or electrical engineering."

func newCareer(t *testing.T, ai genai.Generator, opts ...CareerOption) (*CareerRouter, *twiliosms.MockClient) {
	t.Helper()
	client := twiliosms.NewMockClient()
	svc := messaging.NewTwilioService(client)
	go func() {
		for range svc.Receipts() {
		}
	}()
	t.Cleanup(func() { _ = svc.Stop() })
	return NewCareerRouter(ai, notify.NewDispatcher(svc), opts...), client
}

func careerDial(c *CareerRouter, phone string, steps ...string) string {
	return c.Handle(context.Background(), Decode(testutil.USSDForm("c1", phone, steps...))).String()
}

func TestCareerMenus(t *testing.T) {
	c, client := newCareer(t, &genai.MockGenerator{Response: careerReply})
	tests := []struct {
		name  string
		steps []string
		want  string
	}{
		{"welcome", nil, "CON Welcome to Career Buddy AI 📱\nFind your career path + nearby training.\n1. Start\n99. Exit"},
		{"interest", []string{"1"}, "CON What do you enjoy most?\n1. Maths\n2. Science\n3. Languages\n4. Technical work\n5. Helping people\n0. Back\n99. Exit"},
		{"subject", []string{"1", "4"}, "CON What subject are you best at?\n1. Maths\n2. Science\n3. English\n4. Kiswahili\n5. Computer\n0. Back\n99. Exit"},
		{"location", []string{"1", "4", "5"}, "CON What's your current location? (e.g. Kibera, Rongai, Thika)"},
		{"exit at welcome", []string{"99"}, "END Thank you for using Career Buddy. 🚀"},
		{"exit at subject", []string{"1", "2", "99"}, "END Thank you for using Career Buddy. 🚀"},
		{"too deep", []string{"1", "4", "5", "Kibera", "1"}, "END Thank you for using Career Buddy. 🚀"},
		{"blank location", []string{"1", "4", "5", "   "}, "END Missing location or phone number."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, careerDial(c, testPhone, tt.steps...))
		})
	}
	assert.Empty(t, client.Messages())
}

func TestCareerMissingPhone(t *testing.T) {
	ai := &genai.MockGenerator{Response: careerReply}
	c, _ := newCareer(t, ai)
	assert.Equal(t, "END Missing location or phone number.", careerDial(c, "", "1", "4", "5", "Kibera"))
	assert.Equal(t, 0, ai.CallCount())
}

func TestCareerSuggestion(t *testing.T) {
	ai := &genai.MockGenerator{Response: careerReply}
	c, client := newCareer(t, ai)

	got := careerDial(c, testPhone, "1", "4", "5", " Kibera ")
	assert.Equal(t, "END Join Kibera Digital Hub for coding basics. Enrol at Nairobi Technical TVET for electrical work.\n📩 Full info sent via SMS.", got)

	require.Len(t, ai.Calls, 1)
	assert.Equal(t, careerSystemPrompt, ai.Calls[0].SystemPrompt)
	assert.Contains(t, ai.Calls[0].UserPrompt, "A student from Kibera enjoys Technical work and is good at Computer Studies.")
	assert.Contains(t, ai.Calls[0].UserPrompt, "Located in/near Kibera.")

	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "5679", msgs[0].SenderID)
	assert.Equal(t, "📍 Career Buddy AI (Kibera):\n\n"+careerReply+"\n\n🚀 Keep pushing forward.", msgs[0].Body)
}

func TestCareerUnknownChoicesUseGeneralWording(t *testing.T) {
	ai := &genai.MockGenerator{Response: careerReply}
	c, _ := newCareer(t, ai)

	careerDial(c, testPhone, "1", "9", "0", "Rongai")
	require.Len(t, ai.Calls, 1)
	assert.Contains(t, ai.Calls[0].UserPrompt, "enjoys general interests and is good at general subjects")
}

func TestCareerFailures(t *testing.T) {
	tests := []struct {
		name    string
		ai      *genai.MockGenerator
		smsFail bool
	}{
		{"ai error", &genai.MockGenerator{Err: errors.New("quota exceeded")}, false},
		{"empty reply", &genai.MockGenerator{Response: "   "}, false},
		{"ai timeout", &genai.MockGenerator{Response: careerReply, Delay: time.Second}, false},
		{"sms failure", &genai.MockGenerator{Response: careerReply}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, client := newCareer(t, tt.ai, WithCareerAITimeout(20*time.Millisecond))
			if tt.smsFail {
				client.Err = errors.New("gateway down")
			}
			assert.Equal(t, "END Sorry, something went wrong. Try again later.", careerDial(c, testPhone, "1", "1", "1", "Thika"))
		})
	}
}

func TestCareerScreen(t *testing.T) {
	assert.Equal(t, "One. Two.", careerScreen("One. Two. Three."))
	assert.Equal(t, "Only one.", careerScreen("Only one."))
	assert.Equal(t, "No stop.", careerScreen("No stop"))
	assert.LessOrEqual(t, len([]rune(careerScreen(string(make([]rune, 400))))), maxCareerScreen)
}
