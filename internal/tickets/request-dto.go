package tickets

type CheckInRequest struct {
	Code string `json:"code" binding:"required,min=4,max=64"`
}
