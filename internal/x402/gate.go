package x402

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// Protocol version carried on challenges and facilitator calls.
const Version = 1

// PaymentHeader is the request header carrying the base64-encoded payment
// payload.
const PaymentHeader = "X-Payment"

// PaymentRequirements describes one accepted way to pay for a resource.
type PaymentRequirements struct {
	Scheme            string     `json:"scheme"`
	Network           string     `json:"network"`
	MaxAmountRequired string     `json:"maxAmountRequired"`
	Resource          string     `json:"resource"`
	Description       string     `json:"description"`
	MimeType          string     `json:"mimeType"`
	PayTo             string     `json:"payTo"`
	MaxTimeoutSeconds int        `json:"maxTimeoutSeconds"`
	Asset             string     `json:"asset"`
	Extra             AssetExtra `json:"extra"`
}

// AssetExtra carries token metadata the payer needs to build the transfer.
type AssetExtra struct {
	Decimals int `json:"decimals"`
}

// ChallengeBody is the JSON body of a 402 response.
type ChallengeBody struct {
	X402Version   int                   `json:"x402Version"`
	Error         string                `json:"error"`
	Accepts       []PaymentRequirements `json:"accepts"`
	TransactionID string                `json:"transactionId,omitempty"`
}

// RequirementsConfig is the gate-level input for building requirements.
type RequirementsConfig struct {
	Price       string
	AssetMint   string
	Decimals    int
	Network     string
	PayTo       string
	Resource    string
	Description string
}

// BuildRequirements constructs the exact-scheme payment requirements for one
// protected resource.
func BuildRequirements(config RequirementsConfig) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            "exact",
		Network:           config.Network,
		MaxAmountRequired: config.Price,
		Resource:          config.Resource,
		Description:       config.Description,
		MimeType:          "application/json",
		PayTo:             config.PayTo,
		MaxTimeoutSeconds: 60,
		Asset:             config.AssetMint,
		Extra:             AssetExtra{Decimals: config.Decimals},
	}
}

// ExtractPayment pulls the base64 JSON payment payload from the request
// headers. An absent header returns ("", false); a present but undecodable
// header returns ("", true) so the caller can distinguish no-payment from
// bad-payment.
func ExtractPayment(header http.Header) (payload string, present bool) {
	raw := strings.TrimSpace(header.Get(PaymentHeader))
	if raw == "" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", true
	}
	if !json.Valid(decoded) {
		return "", true
	}
	return raw, true
}

// NewChallenge builds the 402 response body advertising the requirements.
func NewChallenge(reason string, requirements PaymentRequirements) ChallengeBody {
	return ChallengeBody{
		X402Version: Version,
		Error:       reason,
		Accepts:     []PaymentRequirements{requirements},
	}
}
