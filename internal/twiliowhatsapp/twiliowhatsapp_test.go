package twiliowhatsapp

import (
	"context"
	"errors"
	"testing"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeMessageCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessageCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &twilioApi.ApiV2010Message{}, nil
}

func TestAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15551234567", "whatsapp:+15551234567"},
		{"+15551234567", "whatsapp:+15551234567"},
		{"whatsapp:+15551234567", "whatsapp:+15551234567"},
	}
	for _, tt := range tests {
		if got := Address(tt.in); got != tt.want {
			t.Errorf("Address(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientSendMessage(t *testing.T) {
	fake := &fakeMessageCreator{}
	c := newClient(fake, "+14155238886")

	if err := c.SendMessage(context.Background(), "15551234567", "Hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.params) != 1 {
		t.Fatalf("expected 1 API call, got %d", len(fake.params))
	}
	p := fake.params[0]
	if *p.To != "whatsapp:+15551234567" || *p.From != "whatsapp:+14155238886" || *p.Body != "Hello" {
		t.Errorf("params = to %q from %q body %q", *p.To, *p.From, *p.Body)
	}
}

func TestClientSendMessageError(t *testing.T) {
	apiErr := errors.New("rate limited")
	c := newClient(&fakeMessageCreator{err: apiErr}, "whatsapp:+14155238886")

	err := c.SendMessage(context.Background(), "15551234567", "Hello")
	if !errors.Is(err, apiErr) {
		t.Errorf("SendMessage() error = %v, want wrapped %v", err, apiErr)
	}
}

func TestClientSendMessageCancelled(t *testing.T) {
	fake := &fakeMessageCreator{}
	c := newClient(fake, "+14155238886")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.SendMessage(ctx, "15551234567", "Hello"); !errors.Is(err, context.Canceled) {
		t.Errorf("SendMessage() error = %v, want context.Canceled", err)
	}
	if len(fake.params) != 0 {
		t.Error("cancelled send must not reach the API")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("NewClient() error = %v, want ErrMissingCredentials", err)
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); !errors.Is(err, ErrMissingFromNumber) {
		t.Errorf("NewClient() error = %v, want ErrMissingFromNumber", err)
	}
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")
	t.Setenv("TWILIO_FROM_NUMBER", "+14155238886")

	c, err := NewClient()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "12345", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].Body != "Hello Test" {
		t.Errorf("Sent() = %+v", sent)
	}
}
