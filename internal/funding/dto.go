package funding

import "encoding/json"

// chargeRequest is the processor's charge payload.
type chargeRequest struct {
	CreditCard string      `json:"credit_card"`
	Amount     json.Number `json:"amount"`
}

// chargeResponse carries the processor's charge id.
type chargeResponse struct {
	ID string `json:"id"`
}
