package gateway

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// InitializeRequest is the domain view of a checkout initialization
type InitializeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	TxRef       string
	CallbackURL string
	ReturnURL   string
	Title       string
	Description string
}

// InitializeResult carries the hosted checkout destination
type InitializeResult struct {
	CheckoutURL string
	TxRef       string
}

// VerifyResult is the gateway's view of one transaction. Pending means the
// payer has not finished checkout yet; it is neither success nor failure.
type VerifyResult struct {
	Succeeded bool
	Pending   bool
	Status    string
	Message   string
	TxRef     string
	Amount    decimal.Decimal
	Currency  string
}

type customization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type initializePayload struct {
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	TxRef         string        `json:"tx_ref"`
	CallbackURL   string        `json:"callback_url"`
	ReturnURL     string        `json:"return_url"`
	Customization customization `json:"customization"`
}

type initializeResponse struct {
	Message apiMessage `json:"message"`
	Status  string     `json:"status"`
	Data    *struct {
		CheckoutURL string `json:"checkout_url"`
		TxRef       string `json:"tx_ref"`
	} `json:"data"`
}

type verifyResponse struct {
	Message apiMessage `json:"message"`
	Status  string     `json:"status"`
	Data    *struct {
		Status   string          `json:"status"`
		TxRef    string          `json:"tx_ref"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"data"`
}

type errorResponse struct {
	Message apiMessage `json:"message"`
	Status  string     `json:"status"`
}

// apiMessage accepts Chapa's message field, which is a string for most
// responses and an object of field errors for validation failures.
type apiMessage string

func (m *apiMessage) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = apiMessage(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*m = ""
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*m = apiMessage(buf.String())
	return nil
}
