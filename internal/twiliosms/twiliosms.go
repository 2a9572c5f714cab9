// Package twiliosms wraps the Twilio REST API for outbound SMS and text-to-speech calls.
package twiliosms

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"
)

// DefaultTimeout bounds each Twilio HTTP request.
const DefaultTimeout = 10 * time.Second

// Sender delivers SMS messages. An empty senderID uses the client's default number.
type Sender interface {
	SendSMS(ctx context.Context, to, body, senderID string) error
}

// Caller places a voice call that reads message aloud.
type Caller interface {
	PlaceCall(ctx context.Context, to, message string) error
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	Timeout    time.Duration
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the default sending number in E.164 form.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithTimeout bounds each Twilio HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Client sends SMS and places calls through Twilio.
type Client struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewClient builds a Client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	client.SetTimeout(cfg.Timeout)

	return &Client{client: client, fromNumber: cfg.FromNumber}, nil
}

// SendSMS sends body to the recipient. senderID may be an alphanumeric sender
// ID registered on the account.
func (c *Client) SendSMS(ctx context.Context, to, body, senderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := c.fromNumber
	if senderID != "" {
		from = senderID
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.SendSMS: Twilio rejected message", "to", to, "from", from, "error", err)
		return fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Client.SendSMS: message queued", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// PlaceCall calls the recipient and reads message with Twilio's <Say> verb.
func (c *Client) PlaceCall(ctx context.Context, to, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := SayTwiML(message)
	if err != nil {
		return err
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetTwiml(doc)

	resp, err := c.client.Api.CreateCall(params)
	if err != nil {
		slog.Error("Client.PlaceCall: Twilio rejected call", "to", to, "error", err)
		return fmt.Errorf("failed to place call to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Client.PlaceCall: call queued", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// SayTwiML renders a TwiML document speaking message.
func SayTwiML(message string) (string, error) {
	doc, err := twiml.Voice([]twiml.Element{&twiml.VoiceSay{Message: message}})
	if err != nil {
		return "", fmt.Errorf("failed to render TwiML: %w", err)
	}
	return doc, nil
}
