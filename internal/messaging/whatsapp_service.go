package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/JournalPipe/internal/models"
	"github.com/BTreeMap/JournalPipe/internal/whatsapp"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.WhatsAppSender
	waClient *whatsapp.Client // set when client is a live connection; nil for mocks
	events   *eventChannels
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: newEventChannels(),
	}
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
	}
	slog.Debug("WhatsAppService created", "live_client", service.waClient != nil)
	return service
}

// ValidateAndCanonicalizeRecipient reduces phone numbers to digits. Full JIDs
// on the phone-number server become digits too; other JIDs (e.g. LIDs) are
// kept in JID form so replies reach the same chat.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if strings.Contains(recipient, "@") {
		jid, err := whatsapp.RecipientJID(recipient)
		if err != nil {
			return "", err
		}
		return userIDFromJID(jid)
	}
	return canonicalPhone(recipient)
}

// userIDFromJID maps a chat JID to the canonical user ID.
func userIDFromJID(jid types.JID) (string, error) {
	if jid.Server == types.DefaultUserServer {
		return canonicalPhone(jid.User)
	}
	if jid.User == "" {
		return "", fmt.Errorf("invalid WhatsApp JID %q: missing user", jid.String())
	}
	return jid.ToNonAD().String(), nil
}

// Start subscribes to whatsmeow events until ctx is cancelled.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no live client, skipping event subscription")
		return nil
	}
	cli := s.waClient.GetClient()
	handlerID := cli.AddEventHandler(s.handleEvent)
	go func() {
		<-ctx.Done()
		cli.RemoveEventHandler(handlerID)
		slog.Debug("WhatsAppService event handler removed")
	}()
	slog.Info("WhatsAppService started")
	return nil
}

// Stop closes the receipt and response channels.
func (s *WhatsAppService) Stop() error {
	if s.events.close() {
		slog.Info("WhatsAppService stopped and channels closed")
	}
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.events.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage failed", "error", err, "to", canonicalTo)
		return err
	}
	s.events.emitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.events.receipts
}

// Responses returns a channel of incoming messages.
func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.events.responses
}

func (s *WhatsAppService) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		s.handleIncomingMessage(v)
	case *events.Receipt:
		s.handleMessageReceipt(v)
	}
}

// handleIncomingMessage forwards direct text messages from other users.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Message == nil || evt.Info.IsFromMe || evt.Info.IsGroup {
		return
	}
	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		slog.Debug("WhatsAppService ignoring non-text message", "chat", evt.Info.Chat.String())
		return
	}

	from, err := userIDFromJID(evt.Info.Chat)
	if err != nil {
		slog.Warn("WhatsAppService ignoring message from unusable chat", "chat", evt.Info.Chat.String(), "error", err)
		return
	}
	response := models.Response{MessageID: string(evt.Info.ID), From: from, Body: text, Time: evt.Info.Timestamp.Unix()}
	if s.events.emitResponse(response) {
		slog.Debug("WhatsAppService incoming message forwarded", "from", from, "body_length", len(text))
	}
}

// handleMessageReceipt forwards delivery and read receipts.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	to, err := userIDFromJID(evt.Chat)
	if err != nil {
		return
	}
	s.events.emitReceipt(models.Receipt{To: to, Status: status, Time: evt.Timestamp.Unix()})
}
