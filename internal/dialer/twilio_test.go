package dialer

import (
	"context"
	"errors"
	"strings"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeVoiceAPI struct {
	params *twilioApi.CreateCallParams
	err    error
}

func (f *fakeVoiceAPI) CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	sid := "CA123"
	return &twilioApi.ApiV2010Call{Sid: &sid}, nil
}

func TestNewTwilioLauncherRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")
	t.Setenv("TWILIO_AGENT_NUMBER", "")

	if _, err := NewTwilioLauncher(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewTwilioLauncher(WithAccountSID("AC1"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from and agent numbers")
	}
}

func TestNewTwilioLauncherEnvFallback(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC1")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+15550000001")
	t.Setenv("TWILIO_AGENT_NUMBER", "+15550000002")

	l, err := NewTwilioLauncher()
	if err != nil {
		t.Fatalf("NewTwilioLauncher failed: %v", err)
	}
	if l.fromNumber != "+15550000001" || l.agentNumber != "+15550000002" {
		t.Errorf("env fallback not applied: %+v", l)
	}
}

func TestOpenDialerBridgesAgentFirst(t *testing.T) {
	api := &fakeVoiceAPI{}
	l := &TwilioLauncher{api: api, fromNumber: "+15550000001", agentNumber: "+15550000002"}

	if err := l.OpenDialer(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("OpenDialer failed: %v", err)
	}
	if api.params == nil {
		t.Fatal("expected a call to be created")
	}

	// The agent's phone rings first; the lead is bridged via TwiML.
	if api.params.To == nil || *api.params.To != "+15550000002" {
		t.Errorf("expected call to the agent, got %v", api.params.To)
	}
	if api.params.From == nil || *api.params.From != "+15550000001" {
		t.Errorf("expected caller id from number, got %v", api.params.From)
	}
	if api.params.Twiml == nil || !strings.Contains(*api.params.Twiml, "+919876543210") {
		t.Errorf("expected lead number in TwiML, got %v", api.params.Twiml)
	}
}

func TestOpenDialerError(t *testing.T) {
	api := &fakeVoiceAPI{err: errors.New("insufficient balance")}
	l := &TwilioLauncher{api: api, fromNumber: "+1", agentNumber: "+2"}

	if err := l.OpenDialer(context.Background(), "+919876543210"); err == nil {
		t.Error("expected error from the voice API")
	}
}

func TestLauncherFunc(t *testing.T) {
	var dialed string
	f := LauncherFunc(func(ctx context.Context, phoneNumber string) error {
		dialed = phoneNumber
		return nil
	})
	if err := f.OpenDialer(context.Background(), "+919876543210"); err != nil {
		t.Fatalf("OpenDialer failed: %v", err)
	}
	if dialed != "+919876543210" {
		t.Errorf("expected number to pass through, got %q", dialed)
	}
}
