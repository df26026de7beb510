package analytics

// AssignFeePlanRequest replaces an organizer's fee plan. An omitted field
// falls back to the platform default.
type AssignFeePlanRequest struct {
	PercentBps            *int64 `json:"percent_bps" binding:"omitempty,min=0,max=10000"`
	FixedMinor            *int64 `json:"fixed_minor" binding:"omitempty,min=0,max=100000000"`
	ComplimentaryFeeMinor *int64 `json:"complimentary_fee_minor" binding:"omitempty,min=0,max=100000000"`
}

type ComplimentaryRequest struct {
	TicketTypeID   string `json:"ticket_type_id" binding:"required,uuid"`
	Quantity       int    `json:"quantity" binding:"required,min=1,max=500"`
	BuyerEmail     string `json:"buyer_email" binding:"required,email"`
	BuyerFirstName string `json:"buyer_first_name" binding:"required,max=120"`
	BuyerLastName  string `json:"buyer_last_name" binding:"max=120"`
	BuyerPhone     string `json:"buyer_phone" binding:"max=40"`
}
