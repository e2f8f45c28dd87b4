package gateway

import (
	"encoding/json"
	"strings"
)

type invoiceRequest struct {
	PriceAmount      json.Number `json:"price_amount"`
	PriceCurrency    string      `json:"price_currency"`
	PayCurrency      string      `json:"pay_currency,omitempty"`
	OrderID          string      `json:"order_id"`
	OrderDescription string      `json:"order_description,omitempty"`
	IPNCallbackURL   string      `json:"ipn_callback_url,omitempty"`
	SuccessURL       string      `json:"success_url,omitempty"`
	CancelURL        string      `json:"cancel_url,omitempty"`
}

type invoiceResponse struct {
	ID         flexibleID `json:"id"`
	OrderID    string     `json:"order_id"`
	InvoiceURL string     `json:"invoice_url"`
}

// paymentPayload is both the GET /payment/{id} response and the IPN body
type paymentPayload struct {
	PaymentID     flexibleID   `json:"payment_id"`
	InvoiceID     flexibleID   `json:"invoice_id"`
	PaymentStatus string       `json:"payment_status"`
	OrderID       string       `json:"order_id"`
	ActuallyPaid  *json.Number `json:"actually_paid"`
	PayCurrency   string       `json:"pay_currency"`
	Fee           *feePayload  `json:"fee"`
}

type feePayload struct {
	NetworkFee *json.Number `json:"depositFee"`
}

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// flexibleID accepts identifiers sent either as JSON numbers or strings
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*f = flexibleID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}
