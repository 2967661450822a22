/**
 * @description
 * This package provides a client for communicating with the user directory
 * service. The settlement engine uses it for ownership checks and for the
 * contact identity the payment gateway needs (customer email and name).
 */
package directoryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client is a client for the directory service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new directory service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CustomerProfile is the subset of directory data the engine needs.
type CustomerProfile struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Phone      string    `json:"phone"`
	BusinessID uuid.UUID `json:"business_id"`
}

// GetCustomer fetches a customer's profile by id.
func (c *Client) GetCustomer(ctx context.Context, customerID uuid.UUID) (*CustomerProfile, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("directory service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/customers/%s", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to directory service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("customer %s not found in directory", customerID)
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("directory service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var profile CustomerProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	return &profile, nil
}

// CustomerBelongsToBusiness reports whether a customer is registered under a business.
func (c *Client) CustomerBelongsToBusiness(ctx context.Context, customerID, businessID uuid.UUID) (bool, error) {
	profile, err := c.GetCustomer(ctx, customerID)
	if err != nil {
		return false, err
	}
	return profile.BusinessID == businessID, nil
}
