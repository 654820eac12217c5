// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package mockclient registers the deterministic "mock" LLM provider used
// by tests and dry runs: it returns a fixed response rather than calling
// any model.
package mockclient

import (
	"context"

	"odcspipeline/internal/llm"
)

const providerID = "mock"

// Client returns a fixed response to every Complete call.
type Client struct {
	Response string
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.Response == "" {
		return "{}", nil
	}
	return c.Response, nil
}

func (c *Client) ModelName() string { return "mock" }
func (c *Client) IsReady() bool     { return true }

func newClient(cfg map[string]any) (llm.Client, error) {
	resp, _ := cfg["response"].(string)
	return &Client{Response: resp}, nil
}

func init() {
	llm.Register(providerID, newClient)
}
