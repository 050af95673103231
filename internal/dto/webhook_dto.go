package dto

// WhatsAppInbound is the form body Twilio posts for an inbound WhatsApp message.
type WhatsAppInbound struct {
	MessageSid        string `form:"MessageSid"`
	AccountSid        string `form:"AccountSid"`
	From              string `form:"From"`
	To                string `form:"To"`
	Body              string `form:"Body"`
	NumMedia          int    `form:"NumMedia"`
	MediaURL0         string `form:"MediaUrl0"`
	MediaContentType0 string `form:"MediaContentType0"`
	ProfileName       string `form:"ProfileName"`
}

// HasMedia reports whether the message carries at least one attachment.
func (m *WhatsAppInbound) HasMedia() bool {
	return m.NumMedia > 0 && m.MediaURL0 != ""
}

type BillingWebhook struct {
	APIVersion string       `json:"api_version"`
	Event      BillingEvent `json:"event"`
}

// BillingEvent is a subscription lifecycle change from the billing collaborator.
type BillingEvent struct {
	ID             string `json:"id"`
	Type           string `json:"type" validate:"required,oneof=activated renewed cancelled past_due expired downgraded"`
	AccountID      string `json:"account_id" validate:"required,uuid"`
	ProductID      string `json:"product_id"`
	PurchasedAtMs  int64  `json:"purchased_at_ms"`
	ExpirationAtMs int64  `json:"expiration_at_ms"`
}

type WebhookReply struct {
	Status string `json:"status"`
}
