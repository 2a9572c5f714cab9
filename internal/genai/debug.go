package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/afyalink/afyalink/internal/util"
)

type debugEntry struct {
	Timestamp string      `json:"timestamp"`
	Method    string      `json:"method"`
	Model     string      `json:"model"`
	Params    interface{} `json:"params"`
	Response  interface{} `json:"response"`
}

// logDebug writes one JSON file per provider call when debug mode is on.
// Failures are logged and otherwise ignored.
func (c *Client) logDebug(method string, params, response interface{}) {
	if !c.debugMode || c.stateDir == "" {
		return
	}
	writeDebugEntry(c.stateDir, debugEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Method:    method,
		Model:     c.model,
		Params:    params,
		Response:  response,
	})
}

func writeDebugEntry(stateDir string, entry debugEntry) {
	dir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("genai.writeDebugEntry: cannot create debug dir", "dir", dir, "error", err)
		return
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("genai.writeDebugEntry: marshal failed", "error", err)
		return
	}
	name := fmt.Sprintf("genai_%s_%s.json", time.Now().UTC().Format("20060102T150405.000"), util.GenerateRandomHex(6))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		slog.Warn("genai.writeDebugEntry: write failed", "file", name, "error", err)
	}
}
