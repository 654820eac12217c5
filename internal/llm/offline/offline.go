// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package offline registers the "offline" LLM provider: an in-process
// model loaded from a local file path with an optional GPU-layer hint.
//
// This build ships no inference runtime, so Complete always fails with a
// clear error after the model file is validated; pkg/config rejects
// llm.mode "offline" up front for the same reason. The provider stays
// registered so the capability-set contract and config plumbing are
// exercised, and a runtime can be slotted in without touching callers.
package offline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"odcspipeline/internal/llm"
)

const providerID = "offline"

// Client wraps a local model file. The actual inference runtime is an
// external concern; this client validates the model file is present and
// readable at construction time and fails fast on Complete if it was never
// loaded, keeping the same capability-set contract as the online and mock
// clients so callers never need to special-case this provider.
type Client struct {
	ModelPath string
	GPULayers int

	mu     sync.Mutex
	loaded bool
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		return "", fmt.Errorf("llm: offline model %s is not loaded", c.ModelPath)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return "", fmt.Errorf("llm: offline inference runtime is not available in this build")
}

func (c *Client) ModelName() string { return c.ModelPath }
func (c *Client) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func newClient(cfg map[string]any) (llm.Client, error) {
	path, _ := cfg["model_path"].(string)
	if path == "" {
		return nil, fmt.Errorf("llm: offline provider requires a model_path")
	}
	gpuLayers, _ := cfg["gpu_layers"].(float64)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("llm: offline model path %s: %w", path, err)
	}

	return &Client{ModelPath: path, GPULayers: int(gpuLayers), loaded: true}, nil
}

func init() {
	llm.Register(providerID, newClient)
}
