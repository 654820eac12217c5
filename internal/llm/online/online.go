// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package online registers the "online" LLM provider, which calls a
// remote HTTP completion endpoint.
package online

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"odcspipeline/internal/llm"
)

const providerID = "online"

// Client calls a remote HTTP completion endpoint with a JSON body of
// {model, prompt, temperature} and reads {"response": "..."} back. No
// options object is sent.
type Client struct {
	URL         string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
}

type request struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
}

type response struct {
	Response string `json:"response"`
}

// ServerError is returned when the endpoint responds with a non-2xx status.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("llm: server returned %d: %s", e.Status, e.Body)
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(request{Model: c.Model, Prompt: prompt, Temperature: c.Temperature})
	if err != nil {
		return "", fmt.Errorf("llm: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: network error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llm: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ServerError{Status: resp.StatusCode, Body: string(data)}
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return "", fmt.Errorf("llm: decoding response: %w", err)
	}
	return r.Response, nil
}

func (c *Client) ModelName() string { return c.Model }
func (c *Client) IsReady() bool     { return c.URL != "" }

func newClient(cfg map[string]any) (llm.Client, error) {
	url, _ := cfg["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("llm: online provider requires a url")
	}
	model, _ := cfg["model"].(string)
	if model == "" {
		model = "default"
	}
	temperature, _ := cfg["temperature"].(float64)

	timeoutSeconds, _ := cfg["timeout_seconds"].(float64)
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	return &Client{
		URL:         url,
		Model:       model,
		Temperature: temperature,
		HTTPClient:  &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}, nil
}

func init() {
	llm.Register(providerID, newClient)
}
