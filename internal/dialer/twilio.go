// Package dialer Twilio-backed Launcher.
//
// On desks without a native dialer the call is bridged server-side: the
// Twilio Voice API rings the agent's registered number first, then dials
// the lead and connects the legs.
package dialer

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the Twilio dialer.
type Opts struct {
	AccountSID  string
	AuthToken   string
	FromNumber  string // caller id presented to the lead
	AgentNumber string // the agent's own phone, rung first
}

// Option defines a configuration option for the Twilio dialer.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the caller id number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithAgentNumber sets the agent's phone number.
func WithAgentNumber(agent string) Option {
	return func(o *Opts) { o.AgentNumber = agent }
}

// voiceCallCreator is the slice of the Twilio REST client the launcher
// needs; narrowed for testability.
type voiceCallCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioLauncher implements Launcher over the Twilio Voice API.
type TwilioLauncher struct {
	api         voiceCallCreator
	fromNumber  string
	agentNumber string
}

// NewTwilioLauncher creates a TwilioLauncher, falling back to the
// TWILIO_* environment variables for unset options.
func NewTwilioLauncher(opts ...Option) (*TwilioLauncher, error) {
	var cfg Opts
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
	if cfg.AgentNumber == "" {
		cfg.AgentNumber = os.Getenv("TWILIO_AGENT_NUMBER")
	}
	slog.Debug("Twilio dialer config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "",
		"AgentNumber_set", cfg.AgentNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" || cfg.AgentNumber == "" {
		return nil, fmt.Errorf("from number and agent number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioLauncher{
		api:         client.Api,
		fromNumber:  cfg.FromNumber,
		agentNumber: cfg.AgentNumber,
	}, nil
}

// OpenDialer rings the agent's number and bridges the lead in once answered.
func (l *TwilioLauncher) OpenDialer(ctx context.Context, phoneNumber string) error {
	params := &twilioApi.CreateCallParams{}
	params.SetTo(l.agentNumber)
	params.SetFrom(l.fromNumber)
	params.SetTwiml(fmt.Sprintf("<Response><Dial callerId=%q>%s</Dial></Response>", l.fromNumber, phoneNumber))

	call, err := l.api.CreateCall(params)
	if err != nil {
		slog.Error("Twilio OpenDialer failed", "to", phoneNumber, "error", err)
		return fmt.Errorf("failed to place call to %s: %w", phoneNumber, err)
	}

	sid := ""
	if call != nil && call.Sid != nil {
		sid = *call.Sid
	}
	slog.Info("Twilio call initiated", "to", phoneNumber, "sid", sid)
	return nil
}
