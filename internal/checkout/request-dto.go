package checkout

type LineItemRequest struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required,uuid"`
	Quantity     int    `json:"quantity" binding:"required,min=1,max=100"`
}

type BuyerInfo struct {
	Email     string `json:"email" binding:"required,email,max=255"`
	FirstName string `json:"first_name" binding:"max=120"`
	LastName  string `json:"last_name" binding:"max=120"`
	Phone     string `json:"phone" binding:"max=40"`
}

type CreateSessionRequest struct {
	EventID string            `json:"event_id" binding:"required,uuid"`
	Items   []LineItemRequest `json:"items" binding:"required,min=1,dive"`
	Buyer   BuyerInfo         `json:"buyer" binding:"required"`
}

type StartPaymentRequest struct {
	Email   string `json:"email" binding:"required,email"`
	Gateway string `json:"gateway" binding:"omitempty,oneof=mercadopago openpay"`
}

type CancelOrderRequest struct {
	Email string `json:"email" binding:"required,email"`
}
