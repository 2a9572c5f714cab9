package ussd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/afyalink/afyalink/internal/genai"
	"github.com/afyalink/afyalink/internal/notify"
)

const careerSystemPrompt = "You're an AI career assistant for Kenyan students."

const (
	maxCareerLocation = 60
	maxCareerScreen   = 160
)

var careerInterests = map[string]string{
	"1": "Maths",
	"2": "Science",
	"3": "Languages",
	"4": "Technical work",
	"5": "Helping people",
}

var careerSubjects = map[string]string{
	"1": "Maths",
	"2": "Science",
	"3": "English",
	"4": "Kiswahili",
	"5": "Computer Studies",
}

var (
	careerWelcome         = Con("Welcome to Career Buddy AI 📱\nFind your career path + nearby training.\n1. Start\n99. Exit")
	careerInterestMenu    = Con("What do you enjoy most?\n1. Maths\n2. Science\n3. Languages\n4. Technical work\n5. Helping people\n0. Back\n99. Exit")
	careerSubjectMenu     = Con("What subject are you best at?\n1. Maths\n2. Science\n3. English\n4. Kiswahili\n5. Computer\n0. Back\n99. Exit")
	careerLocationPrompt  = Con("What's your current location? (e.g. Kibera, Rongai, Thika)")
	careerMissingLocation = End("Missing location or phone number.")
	careerFailed          = End("Sorry, something went wrong. Try again later.")
	careerThanks          = End("Thank you for using Career Buddy. 🚀")
)

// CareerRouter serves the Career Buddy menu: two choices and a location lead
// to AI suggestions shown in short on screen and in full by SMS.
type CareerRouter struct {
	ai        genai.Generator
	notifier  *notify.Dispatcher
	aiTimeout time.Duration
}

// CareerOption configures a CareerRouter.
type CareerOption func(*CareerRouter)

// WithCareerAITimeout bounds the suggestion call.
func WithCareerAITimeout(d time.Duration) CareerOption {
	return func(c *CareerRouter) {
		if d > 0 {
			c.aiTimeout = d
		}
	}
}

// NewCareerRouter creates a CareerRouter asking ai and sending through notifier.
func NewCareerRouter(ai genai.Generator, notifier *notify.Dispatcher, opts ...CareerOption) *CareerRouter {
	c := &CareerRouter{ai: ai, notifier: notifier, aiTimeout: DefaultAITimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle renders the screen for req. Unknown interest or subject tokens fall
// back to general wording rather than ending the session.
func (c *CareerRouter) Handle(ctx context.Context, req Request) Response {
	path := req.Path
	if path.Len() > 0 && path.Last() == menuExit && path.Len() < 4 {
		return careerThanks
	}
	switch path.Len() {
	case 0:
		return careerWelcome
	case 1:
		return careerInterestMenu
	case 2:
		return careerSubjectMenu
	case 3:
		return careerLocationPrompt
	case 4:
		return c.suggest(ctx, req)
	}
	return careerThanks
}

func (c *CareerRouter) suggest(ctx context.Context, req Request) Response {
	location := notify.Truncate(strings.Join(strings.Fields(req.Path.At(3)), " "), maxCareerLocation)
	if location == "" || req.Phone == "" {
		return careerMissingLocation
	}
	interest, ok := careerInterests[req.Path.At(1)]
	if !ok {
		interest = "general interests"
	}
	subject, ok := careerSubjects[req.Path.At(2)]
	if !ok {
		subject = "general subjects"
	}

	aiCtx, cancel := context.WithTimeout(ctx, c.aiTimeout)
	defer cancel()
	reply, err := c.ai.GeneratePromptWithContext(aiCtx, careerSystemPrompt, careerPrompt(location, interest, subject))
	reply = strings.TrimSpace(reply)
	if err != nil || reply == "" {
		slog.Error("CareerRouter.suggest: suggestion failed", "phone", req.Phone, "error", err, "empty", reply == "")
		return careerFailed
	}

	body := fmt.Sprintf("📍 Career Buddy AI (%s):\n\n%s\n\n🚀 Keep pushing forward.", location, reply)
	if err := c.notifier.SendSMS(ctx, notify.KindCareer, req.Phone, body, chatbotSenderID); err != nil {
		slog.Error("CareerRouter.suggest: SMS not sent", "phone", req.Phone, "error", err)
		return careerFailed
	}
	return Endf("%s\n📩 Full info sent via SMS.", careerScreen(reply))
}

func careerPrompt(location, interest, subject string) string {
	return fmt.Sprintf(`A student from %[1]s enjoys %[2]s and is good at %[3]s.
Suggest 2 different, nearby, affordable institutions they can join (TVETs, digital hubs, or community training).
Then recommend 2 career paths that match the subject + interest.
Avoid repeating the same institution in future responses.
Format it clearly:
1. Institution: Name - what it teaches. Located in/near %[1]s.
2. Career: Name - short reason why it's a good fit.
Keep it short, real, and inspiring.`, location, interest, subject)
}

// careerScreen returns the first two sentences of reply, capped for the screen.
func careerScreen(reply string) string {
	parts := strings.SplitN(reply, ". ", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	short := strings.TrimRight(strings.Join(parts, ". "), ".") + "."
	return notify.Truncate(short, maxCareerScreen)
}
