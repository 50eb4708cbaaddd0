package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/willibrandon/gorestore/restore"
)

// RestoreSchemaVersion is the schema version of RestoreOutput.
const RestoreSchemaVersion = "1.0.0"

// RestoreOutput is the JSON document written by "restore --json".
type RestoreOutput struct {
	SchemaVersion string                    `json:"schemaVersion"`
	Success       bool                      `json:"success"`
	Projects      []*restore.RestoreSummary `json:"projects"`
	ElapsedMs     int64                     `json:"elapsedMs"`
}

// NewRestoreOutput wraps summaries for JSON output.
func NewRestoreOutput(summaries []*restore.RestoreSummary, elapsed time.Duration) *RestoreOutput {
	return &RestoreOutput{
		SchemaVersion: RestoreSchemaVersion,
		Success:       restore.ExitCode(summaries) == 0,
		Projects:      summaries,
		ElapsedMs:     elapsed.Milliseconds(),
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
