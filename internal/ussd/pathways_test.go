package ussd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/afyalink/afyalink/internal/messaging"
	"github.com/afyalink/afyalink/internal/notify"
	"github.com/afyalink/afyalink/internal/testutil"
	"github.com/afyalink/afyalink/internal/twiliosms"
)

type mockEmailSender struct {
	mock.Mock
}

func (m *mockEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

func newPathways(t *testing.T, email messaging.EmailSender, opts ...PathwaysOption) (*PathwaysRouter, *twiliosms.MockClient) {
	t.Helper()
	client := twiliosms.NewMockClient()
	svc := messaging.NewTwilioService(client)
	go func() {
		for range svc.Receipts() {
		}
	}()
	t.Cleanup(func() { _ = svc.Stop() })

	var dopts []notify.Option
	if email != nil {
		dopts = append(dopts, notify.WithEmailSender(email))
	}
	return NewPathwaysRouter(notify.NewDispatcher(svc, dopts...), opts...), client
}

func pathwaysDial(p *PathwaysRouter, phone string, steps ...string) string {
	return p.Handle(context.Background(), Decode(testutil.USSDForm("p1", phone, steps...))).String()
}

func TestPathwaysMenu(t *testing.T) {
	p, _ := newPathways(t, nil)
	assert.Equal(t, "CON Welcome to Pathways Aid 📚\n1. Find a Tutor\n2. Chatbot Info\n3. Reports\n4. Sponsorship\n99. Exit", pathwaysDial(p, testPhone))
	assert.Equal(t, "END Thank you for using Pathways Aid 🙏", pathwaysDial(p, testPhone, "99"))
	assert.Equal(t, "END Invalid choice. Please try again.", pathwaysDial(p, testPhone, "7"))
}

func TestPathwaysTutor(t *testing.T) {
	p, client := newPathways(t, nil)
	assert.Equal(t, "CON Do you want to request a tutor now?\n1. Yes\n2. No\n0. Back\n99. Exit", pathwaysDial(p, testPhone, "1"))
	assert.Equal(t, "END Thank you for checking Tutor services.", pathwaysDial(p, testPhone, "1", "2"))
	assert.Empty(t, client.Messages())

	assert.Equal(t, "END Tutor request received! 📩 Details sent via SMS.", pathwaysDial(p, testPhone, "1", "1"))
	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Pathways Aid", msgs[0].SenderID)
	assert.Equal(t, "📩 Pathways Aid: A tutor has been assigned to you. Expect a call within 24 hours.", msgs[0].Body)
}

func TestPathwaysChatbotInfo(t *testing.T) {
	p, client := newPathways(t, nil)
	assert.Equal(t, "END Info about our SMS chatbot has been sent! 📩", pathwaysDial(p, testPhone, "2"))
	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "5679", msgs[0].SenderID)
	assert.Equal(t, "END Invalid choice. Please try again.", pathwaysDial(p, testPhone, "2", "1"))
}

func TestPathwaysReports(t *testing.T) {
	sender := &mockEmailSender{}
	sender.On("SendEmail", "reports@pathways.example", "Student Reports - Pathways Aid",
		"John Doe: Progressing well, needs more books.\n\nJane Doe: Excellent in maths, struggling with English.").Return(nil).Once()
	p, _ := newPathways(t, sender, WithReportsReceiver("reports@pathways.example"))

	assert.Equal(t, "CON Do you want student reports via email?\n1. Yes\n2. No\n0. Back\n99. Exit", pathwaysDial(p, testPhone, "3"))
	assert.Equal(t, "END Report request cancelled.", pathwaysDial(p, testPhone, "3", "0"))
	assert.Equal(t, "END Reports have been emailed 📧", pathwaysDial(p, testPhone, "3", "1"))
	sender.AssertExpectations(t)
}

func TestPathwaysReportsFailure(t *testing.T) {
	sender := &mockEmailSender{}
	sender.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	p, _ := newPathways(t, sender, WithReportsReceiver("reports@pathways.example"))
	assert.Equal(t, "END Failed to send reports. Try later.", pathwaysDial(p, testPhone, "3", "1"))

	unconfigured, _ := newPathways(t, nil, WithReportsReceiver("reports@pathways.example"))
	assert.Equal(t, "END Failed to send reports. Try later.", pathwaysDial(unconfigured, testPhone, "3", "1"))
}

func TestPathwaysSponsorship(t *testing.T) {
	p, client := newPathways(t, nil)
	assert.Equal(t, "CON Do you want to check sponsorship?\n1. Yes\n2. No\n0. Back\n99. Exit", pathwaysDial(p, testPhone, "4"))
	assert.Equal(t, "END Sponsorship check cancelled.", pathwaysDial(p, testPhone, "4", "2"))

	assert.Equal(t, "END Sponsorship info sent via SMS.", pathwaysDial(p, "+254700111222", "4", "1"))
	assert.Equal(t, "END Sponsorship info sent via SMS.", pathwaysDial(p, "+254799999999", "4", "1"))

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "📢 Sponsorship Status: Yes, sponsored by Equity Foundation", msgs[0].Body)
	assert.Equal(t, "📢 Sponsorship Status: No sponsor record found", msgs[1].Body)
}

func TestPathwaysCustomDirectory(t *testing.T) {
	p, client := newPathways(t, nil,
		WithSponsors(map[string]string{"254711000000": "Yes, sponsored by County Bursary"}),
		WithReports([]StudentReport{{Student: "A", Report: "B"}}))
	pathwaysDial(p, "254711000000", "4", "1")
	msgs := client.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Body, "County Bursary")
	assert.Equal(t, "A: B", p.reportText())
}
