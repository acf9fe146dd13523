package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// apiClient is a thin client for the service's REST API used by the
// operator subcommands.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(path string, dst interface{}) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, dst)
}

func (c *apiClient) post(path string, body interface{}, dst interface{}) error {
	var buf bytes.Buffer
	err := json.NewEncoder(&buf).Encode(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.http.Post(c.base+path, "application/json", &buf)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, dst)
}

func decodeResponse(resp *http.Response, dst interface{}) error {
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	if dst == nil || len(payload) == 0 {
		return nil
	}

	err = json.Unmarshal(payload, dst)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
