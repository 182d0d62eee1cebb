// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"os/exec"
	"sync"
	"time"
)

// =============================================================================
// TOOL DETECTION
// =============================================================================

// ToolStatus reports whether an external tool is installed.
type ToolStatus struct {
	Name      string
	Path      string
	Available bool
}

var (
	toolCache         = make(map[string]cachedTool)
	toolCacheMu       sync.Mutex
	toolCacheDuration = 5 * time.Minute
)

type cachedTool struct {
	status ToolStatus
	at     time.Time
}

// LookupTool finds name on PATH. Results are cached for five minutes.
func LookupTool(name string) ToolStatus {
	toolCacheMu.Lock()
	defer toolCacheMu.Unlock()

	if c, ok := toolCache[name]; ok && time.Since(c.at) < toolCacheDuration {
		return c.status
	}

	status := ToolStatus{Name: name}
	if path, err := exec.LookPath(name); err == nil {
		status.Path = path
		status.Available = true
	}
	toolCache[name] = cachedTool{status: status, at: time.Now()}
	return status
}

// ProbeTools reports the availability of the converter's tools.
func (c *Converter) ProbeTools() []ToolStatus {
	statuses := []ToolStatus{LookupTool(c.image.Name())}
	if c.video != nil {
		statuses = append(statuses, LookupTool(c.video.Name()))
	}
	return statuses
}
