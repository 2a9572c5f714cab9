package ussd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/afyalink/afyalink/internal/notify"
)

const (
	pathwaysSenderID = "Pathways Aid"
	chatbotSenderID  = "5679"
	reportsSubject   = "Student Reports - Pathways Aid"
)

// StudentReport is one progress note emailed by the Reports menu.
type StudentReport struct {
	Student string
	Report  string
}

// DefaultReports are the reports served when none are configured.
var DefaultReports = []StudentReport{
	{Student: "John Doe", Report: "Progressing well, needs more books."},
	{Student: "Jane Doe", Report: "Excellent in maths, struggling with English."},
}

// DefaultSponsors maps caller numbers (digits only, country code first) to
// sponsorship status.
var DefaultSponsors = map[string]string{
	"254700111222": "Yes, sponsored by Equity Foundation",
	"254700333444": "No sponsor found",
}

var (
	pathwaysWelcome   = Con("Welcome to Pathways Aid 📚\n1. Find a Tutor\n2. Chatbot Info\n3. Reports\n4. Sponsorship\n99. Exit")
	pathwaysTutor     = Con("Do you want to request a tutor now?\n1. Yes\n2. No\n0. Back\n99. Exit")
	pathwaysReports   = Con("Do you want student reports via email?\n1. Yes\n2. No\n0. Back\n99. Exit")
	pathwaysSponsor   = Con("Do you want to check sponsorship?\n1. Yes\n2. No\n0. Back\n99. Exit")
	pathwaysExit      = End("Thank you for using Pathways Aid 🙏")
	pathwaysInvalid   = End("Invalid choice. Please try again.")
	pathwaysNoSponsor = "No sponsor record found"
)

// PathwaysRouter serves the Pathways Aid student support menu.
type PathwaysRouter struct {
	notifier        *notify.Dispatcher
	reportsReceiver string
	reports         []StudentReport
	sponsors        map[string]string
}

// PathwaysOption configures a PathwaysRouter.
type PathwaysOption func(*PathwaysRouter)

// WithReportsReceiver sets the address the Reports menu emails.
func WithReportsReceiver(addr string) PathwaysOption {
	return func(p *PathwaysRouter) { p.reportsReceiver = addr }
}

// WithSponsors replaces the sponsorship directory.
func WithSponsors(sponsors map[string]string) PathwaysOption {
	return func(p *PathwaysRouter) { p.sponsors = sponsors }
}

// WithReports replaces the student reports.
func WithReports(reports []StudentReport) PathwaysOption {
	return func(p *PathwaysRouter) { p.reports = reports }
}

// NewPathwaysRouter creates a PathwaysRouter sending through notifier.
func NewPathwaysRouter(notifier *notify.Dispatcher, opts ...PathwaysOption) *PathwaysRouter {
	p := &PathwaysRouter{notifier: notifier, reports: DefaultReports, sponsors: DefaultSponsors}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle renders the screen for req. It never fails; delivery errors are
// logged and, for reports, shown to the caller.
func (p *PathwaysRouter) Handle(ctx context.Context, req Request) Response {
	path := req.Path
	if path.Len() == 0 {
		return pathwaysWelcome
	}
	switch path.At(0) {
	case "1":
		return p.tutor(ctx, req)
	case "2":
		if path.Len() > 1 {
			return pathwaysInvalid
		}
		p.sms(ctx, notify.KindChatbotInfo, req.Phone,
			"🤖 Chatbot Info: Use our SMS chatbot via 5679 to get instant learning help, tips, and answers 24/7!", chatbotSenderID)
		return End("Info about our SMS chatbot has been sent! 📩")
	case "3":
		return p.reportsMenu(ctx, req)
	case "4":
		return p.sponsorship(ctx, req)
	case menuExit:
		return pathwaysExit
	}
	return pathwaysInvalid
}

func (p *PathwaysRouter) tutor(ctx context.Context, req Request) Response {
	if req.Path.Len() == 1 {
		return pathwaysTutor
	}
	if req.Path.Len() == 2 && req.Path.At(1) == "1" {
		p.sms(ctx, notify.KindTutor, req.Phone,
			"📩 Pathways Aid: A tutor has been assigned to you. Expect a call within 24 hours.", pathwaysSenderID)
		return End("Tutor request received! 📩 Details sent via SMS.")
	}
	return End("Thank you for checking Tutor services.")
}

func (p *PathwaysRouter) reportsMenu(ctx context.Context, req Request) Response {
	if req.Path.Len() == 1 {
		return pathwaysReports
	}
	if req.Path.Len() != 2 || req.Path.At(1) != "1" {
		return End("Report request cancelled.")
	}
	if err := p.notifier.Email(ctx, notify.KindReports, p.reportsReceiver, reportsSubject, p.reportText()); err != nil {
		slog.Error("PathwaysRouter.reportsMenu: email failed", "receiver", p.reportsReceiver, "error", err)
		return End("Failed to send reports. Try later.")
	}
	return End("Reports have been emailed 📧")
}

func (p *PathwaysRouter) reportText() string {
	lines := make([]string, 0, len(p.reports))
	for _, r := range p.reports {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Student, r.Report))
	}
	return strings.Join(lines, "\n\n")
}

func (p *PathwaysRouter) sponsorship(ctx context.Context, req Request) Response {
	if req.Path.Len() == 1 {
		return pathwaysSponsor
	}
	if req.Path.Len() != 2 || req.Path.At(1) != "1" {
		return End("Sponsorship check cancelled.")
	}
	info, ok := p.sponsors[strings.TrimPrefix(req.Phone, "+")]
	if !ok {
		info = pathwaysNoSponsor
	}
	p.sms(ctx, notify.KindSponsorship, req.Phone, "📢 Sponsorship Status: "+info, pathwaysSenderID)
	return End("Sponsorship info sent via SMS.")
}

func (p *PathwaysRouter) sms(ctx context.Context, kind, phone, body, senderID string) {
	if err := p.notifier.SendSMS(ctx, kind, phone, body, senderID); err != nil {
		slog.Warn("PathwaysRouter.sms: SMS not sent", "kind", kind, "phone", phone, "error", err)
	}
}
