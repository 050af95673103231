package messaging

import (
	"github.com/twilio/twilio-go/client"
)

// SignatureValidator checks X-Twilio-Signature against the public webhook URL and form params.
type SignatureValidator struct {
	validator client.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{validator: client.NewRequestValidator(authToken)}
}

func (v *SignatureValidator) Validate(signature, url string, params map[string]string) bool {
	if signature == "" {
		return false
	}
	return v.validator.Validate(url, params, signature)
}
