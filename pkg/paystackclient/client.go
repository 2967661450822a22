/**
 * @description
 * This package provides a client for interacting with the Paystack API.
 * It encapsulates the logic for making authenticated HTTP requests to Paystack's
 * endpoints, handling request body construction, and parsing responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 *
 * @notes
 * - All amounts sent to and received from Paystack are in kobo (minor units).
 * - Requests carry a bounded timeout; the engine never retries a gateway call.
 */
package paystackclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the Paystack API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// InitializeTransactionRequest is the payload for a hosted-checkout transaction.
type InitializeTransactionRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"` // in kobo
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// InitializeTransactionResponse is the checkout handle returned by Paystack.
type InitializeTransactionResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyTransactionResponse is the result of a verification poll.
type VerifyTransactionResponse struct {
	Status string `json:"status"` // e.g. "success", "abandoned", "failed"
	Amount int64  `json:"amount"` // in kobo
	PaidAt string `json:"paid_at"`
}

// Customer is the gateway-side customer record.
type Customer struct {
	CustomerCode string `json:"customer_code"`
	Email        string `json:"email"`
}

// DedicatedAccount is a dedicated virtual account issued for one customer.
type DedicatedAccount struct {
	Bank struct {
		Name string `json:"name"`
	} `json:"bank"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

// ErrorResponse represents an error from the Paystack API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("paystack api error: %s", e.Message)
	}
	return fmt.Sprintf("paystack api error: status %d", e.StatusCode)
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal paystack request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute paystack request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode paystack response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return &ErrorResponse{StatusCode: resp.StatusCode, Message: envelope.Message}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode paystack response data: %w", err)
		}
	}
	return nil
}

// InitializeTransaction opens a hosted-checkout transaction.
func (c *Client) InitializeTransaction(ctx context.Context, reqBody InitializeTransactionRequest) (*InitializeTransactionResponse, error) {
	var out InitializeTransactionResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", reqBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction polls the status of a transaction by reference.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*VerifyTransactionResponse, error) {
	var out VerifyTransactionResponse
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCustomer registers a customer with the gateway.
func (c *Client) CreateCustomer(ctx context.Context, email, firstName, lastName, phone string) (*Customer, error) {
	payload := map[string]string{
		"email":      email,
		"first_name": firstName,
		"last_name":  lastName,
		"phone":      phone,
	}
	var out Customer
	if err := c.do(ctx, http.MethodPost, "/customer", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDedicatedAccount requests a dedicated virtual account for a customer.
func (c *Client) CreateDedicatedAccount(ctx context.Context, customerCode, preferredBank string) (*DedicatedAccount, error) {
	payload := map[string]string{
		"customer":       customerCode,
		"preferred_bank": preferredBank,
	}
	var out DedicatedAccount
	if err := c.do(ctx, http.MethodPost, "/dedicated_account", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
