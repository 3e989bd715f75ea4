package batch

import (
	"context"
	"strings"

	"github.com/sells-group/atlas-research/internal/ingest"
	"github.com/sells-group/atlas-research/internal/model"
)

// DomainColumn is the header that identifies the target column of an upload.
const DomainColumn = "domain"

// Analysis is the validated content of an upload.
type Analysis struct {
	Filename string         `json:"filename"`
	Count    int            `json:"count"`
	Skipped  int            `json:"skipped"`
	Targets  []model.Target `json:"targets"`
}

// parseTargets extracts targets from the domain column of t in row order.
// Blank cells and values that are not domains are skipped.
func parseTargets(t *ingest.Table) (targets []model.Target, skipped int) {
	col := t.Column(DomainColumn)
	for _, row := range t.Rows {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			skipped++
			continue
		}
		target, err := model.NewTarget(row[col])
		if err != nil || !target.IsDomain() {
			skipped++
			continue
		}
		targets = append(targets, target)
	}
	return targets, skipped
}

// readUpload parses the stored file and validates its shape.
func readUpload(ctx context.Context, path, filename string) (*ingest.Table, error) {
	if _, ok := ingest.DetectFormat(filename); !ok {
		return nil, model.NewValidationError(filename, "unsupported file type, expected .csv or .xlsx")
	}
	t, err := ingest.ReadTable(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, model.NewValidationError(filename, "unreadable file: "+err.Error())
	}
	if t.Column(DomainColumn) < 0 {
		return nil, model.NewValidationError(filename, "missing \"domain\" column")
	}
	return t, nil
}
