// Package marketing talks to the external marketing-list provider that
// confirmed subscribers are mirrored into.
package marketing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/caribhq/newsletter"
)

const defaultTimeout = 10 * time.Second

// Client is a JSON HTTP client for the provider's contacts API.
type Client struct {
	baseURL    string
	apiKey     string
	listID     string
	httpClient *http.Client
}

// NewClient builds a client from the Marketing section of the config.
func NewClient(config *newsletter.Config) *Client {
	return &Client{
		baseURL: config.Marketing.BaseURL,
		apiKey:  config.Marketing.APIKey,
		listID:  config.Marketing.ListID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Configured reports whether the marketing integration is set up at all.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

type contact struct {
	ID string `json:"id"`
}

// AddContact adds a confirmed subscriber to the list and returns the
// provider-assigned contact id.
func (c *Client) AddContact(ctx context.Context, email string, interests []string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/lists/%s/contacts", c.listID), map[string]interface{}{
		"email": email,
		"tags":  interests,
	})
	if err != nil {
		return "", err
	}

	var created contact
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("provider returned no contact id")
	}

	return created.ID, nil
}

// RemoveContact deletes a contact previously created by AddContact.
func (c *Client) RemoveContact(ctx context.Context, contactID string) error {
	path := fmt.Sprintf("/lists/%s/contacts/%s", c.listID, url.PathEscape(contactID))
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil)

	return err
}

// doRequest makes an HTTP request to the provider with api-key auth.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
