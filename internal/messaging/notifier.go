// Package messaging sends and receives WhatsApp traffic and transactional email.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"
)

// Outbound is one message to a WhatsApp address in E.164.
type Outbound struct {
	To       string
	Body     string
	MediaURL string
}

// Notifier sends outbound channel messages and returns the provider message id.
type Notifier interface {
	Send(ctx context.Context, msg Outbound) (string, error)
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioNotifier sends WhatsApp messages through the Twilio REST API,
// throttled to the sender's throughput.
type TwilioNotifier struct {
	api     messageCreator
	from    string
	limiter *rate.Limiter
}

func NewTwilioNotifier(accountSID, authToken, from string, perSecond float64) *TwilioNotifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioNotifier(client.Api, from, perSecond)
}

func newTwilioNotifier(api messageCreator, from string, perSecond float64) *TwilioNotifier {
	if perSecond <= 0 {
		perSecond = 10
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &TwilioNotifier{api: api, from: from, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (n *TwilioNotifier) Send(ctx context.Context, msg Outbound) (string, error) {
	if msg.To == "" {
		return "", errors.New("missing recipient")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("notify rate limit: %w", err)
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(whatsappAddress(msg.To))
	params.SetFrom(whatsappAddress(n.from))
	params.SetBody(msg.Body)
	if msg.MediaURL != "" {
		params.SetMediaUrl([]string{msg.MediaURL})
	}

	resp, err := n.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("twilio send: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return "", nil
	}
	return *resp.Sid, nil
}

// LogNotifier stands in when Twilio is not configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, msg Outbound) (string, error) {
	slog.Info("outbound message (twilio disabled)", "to", msg.To, "body", msg.Body, "media_url", msg.MediaURL)
	return "", nil
}

func whatsappAddress(phone string) string {
	if strings.HasPrefix(phone, "whatsapp:") {
		return phone
	}
	return "whatsapp:" + phone
}
