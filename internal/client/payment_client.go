package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// PaymentClient talks to the cryptocurrency payment processor: invoice
// creation on checkout and IPN signature verification on the webhook.
type PaymentClient struct {
	baseURL    string
	apiKey     string
	ipnSecret  []byte
	httpClient *http.Client
}

func NewPaymentClient(baseURL, apiKey, ipnSecret string) *PaymentClient {
	return &PaymentClient{
		baseURL:   baseURL,
		apiKey:    apiKey,
		ipnSecret: []byte(ipnSecret),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type InvoiceRequest struct {
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description,omitempty"`
	IPNCallbackURL   string  `json:"ipn_callback_url,omitempty"`
	SuccessURL       string  `json:"success_url,omitempty"`
	CancelURL        string  `json:"cancel_url,omitempty"`
}

type Invoice struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoice_url"`
	OrderID    string `json:"order_id"`
}

// CreateInvoice creates a payment invoice for an order.
func (c *PaymentClient) CreateInvoice(ctx context.Context, req *InvoiceRequest) (*Invoice, error) {
	log.Printf("[PaymentClient] Creating invoice for order %s (%.2f %s)", req.OrderID, req.PriceAmount, req.PriceCurrency)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/invoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("payment processor returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var invoice Invoice
	if err := json.Unmarshal(respBody, &invoice); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
	}

	log.Printf("[PaymentClient] Invoice created: %s", invoice.ID)
	return &invoice, nil
}

// VerifySignature checks the IPN signature: HMAC-SHA512 over the raw webhook
// body, hex-encoded. Constant-time comparison.
func (c *PaymentClient) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha512.New, c.ipnSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
