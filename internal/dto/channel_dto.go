package dto

type BindChannelRequest struct {
	Phone string `json:"phone" validate:"required,min=8,max=30"`
}

type VerifyChannelRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}
