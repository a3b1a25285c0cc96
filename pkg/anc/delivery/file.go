package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/anc"
)

// FileSender persists one JSON evidence record per notification under
// baseDir instead of delivering to a real channel. There is no email/SMS/
// voice SDK anywhere in the retrieved examples, so those channels are
// backed by this evidence-only sender until a real provider is wired in;
// it is grounded directly on the teacher's FileDeliveryService, which used
// the same directory-per-delivery layout for its "file" channel.
type FileSender struct {
	baseDir string
}

// NewFileSender builds a FileSender writing evidence files under baseDir.
func NewFileSender(baseDir string) *FileSender {
	return &FileSender{baseDir: baseDir}
}

func (f *FileSender) Send(ctx context.Context, channel, target string, alert *anc.Alert) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to create evidence output directory")
	}

	record := struct {
		Channel    string    `json:"channel"`
		Target     string    `json:"target"`
		AlertID    string    `json:"alert_id"`
		Severity   string    `json:"severity"`
		Summary    string    `json:"summary"`
		RecordedAt time.Time `json:"recorded_at"`
	}{
		Channel:    channel,
		Target:     target,
		AlertID:    alert.AlertID,
		Severity:   alert.Severity,
		Summary:    alert.Summary,
		RecordedAt: alert.LastSeenAt,
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}

	name := fmt.Sprintf("%s-%s-%d.json", alert.AlertID, channel, alert.LastSeenAt.UnixNano())
	path := filepath.Join(f.baseDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeDatabase, "failed to write evidence record")
	}
	return nil
}
