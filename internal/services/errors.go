package services

import "errors"

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrPhoneTaken       = errors.New("phone number already linked to an account")
	ErrChannelLimit     = errors.New("channel limit reached for current plan")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrAlreadyVerified  = errors.New("channel already verified")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrLastChannel      = errors.New("cannot remove the last active channel")
	ErrUnknownPlan      = errors.New("unknown plan")
	ErrInvalidBillingID = errors.New("invalid account id in billing event")
)
