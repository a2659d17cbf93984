package dto

type CreateOrderRequest struct {
	TicketTypeID uint   `json:"ticket_type_id" validate:"required"`
	BuyerName    string `json:"buyer_name" validate:"required"`
	BuyerEmail   string `json:"buyer_email" validate:"required"`
	BuyerPhone   string `json:"buyer_phone"`
	Count        int    `json:"count" validate:"max=1000"`
	ReferrerCode string `json:"referrer_code"`
}

type PaymentReferenceRequest struct {
	Reference string `json:"reference" validate:"required"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type TransferRequest struct {
	BuyerName  string `json:"buyer_name" validate:"required"`
	BuyerEmail string `json:"buyer_email" validate:"required"`
	BuyerPhone string `json:"buyer_phone"`
}

// PaymentWebhookRequest is the provider-agnostic payment notification.
// Amount is in minor units.
type PaymentWebhookRequest struct {
	ProviderReference string `json:"provider_reference" validate:"required"`
	OrderReference    string `json:"order_reference"`
	Amount            int64  `json:"amount" validate:"gte=0"`
	Outcome           string `json:"outcome" validate:"required"`
	Reason            string `json:"reason"`
}

type CheckInSessionRequest struct {
	PIN string `json:"pin" validate:"required"`
}

// ClaimRequest admits one entry when count is omitted.
type ClaimRequest struct {
	Count *int `json:"count"`
}
