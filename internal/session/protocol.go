package session

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/report"
)

// Inbound directive kinds.
const (
	DirectiveAnalyze = "analyze_file"
	DirectiveConfirm = "confirm_start"
)

// Outbound message kinds.
const (
	TypeLog            = "log"
	TypeAnalysisResult = "analysis_result"
	TypeProgress       = "progress"
	TypeResult         = "result"
	TypeBulkResult     = "bulk_result"
	TypeError          = "error"
)

// Directive is one inbound command.
type Directive struct {
	Type     string `json:"type" validate:"required,oneof=analyze_file confirm_start"`
	Filename string `json:"filename" validate:"required,max=255,excludesall=/\\"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "is too long"
	default:
		return "is invalid"
	}
}

// ParseDirective decodes and validates a directive. Undecodable frames are
// session faults; well-formed frames with bad fields are validation errors.
func ParseDirective(data []byte) (Directive, error) {
	var d Directive
	if err := json.Unmarshal(data, &d); err != nil {
		return Directive{}, &model.SessionFault{Reason: "malformed directive", Err: err}
	}
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return Directive{}, model.NewValidationError(fe.Field(), describe(fe))
		}
		return Directive{}, eris.Wrap(err, "session: validate directive")
	}
	return d, nil
}

// LogMessage renders one log event.
type LogMessage struct {
	Type      string         `json:"type"`
	Content   string         `json:"content"`
	Target    string         `json:"target,omitempty"`
	Phase     model.Phase    `json:"phase,omitempty"`
	Category  model.Category `json:"category,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AnalysisMessage reports a validated upload awaiting confirmation.
type AnalysisMessage struct {
	Type     string `json:"type"`
	Filename string `json:"filename"`
	Count    int    `json:"count"`
	Skipped  int    `json:"skipped"`
}

// ProgressMessage reports batch advancement.
type ProgressMessage struct {
	Type    string `json:"type"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Target  string `json:"target"`
	Status  string `json:"status"`
}

// ResultMessage ends a successful single-target run.
type ResultMessage struct {
	Type      string          `json:"type"`
	Profile   *report.Profile `json:"profile"`
	ReportURL string          `json:"report_url,omitempty"`
}

// BulkResultMessage ends a batch run.
type BulkResultMessage struct {
	Type      string `json:"type"`
	ExcelURL  string `json:"excel_url,omitempty"`
	Filename  string `json:"filename"`
	Count     int    `json:"count"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// ErrorMessage describes a failure to the observer.
type ErrorMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func eventMessage(ev model.Event) any {
	switch ev.Kind {
	case model.EventLog:
		if ev.Log == nil {
			return nil
		}
		return LogMessage{
			Type:      TypeLog,
			Content:   ev.Log.Content,
			Target:    ev.Log.Target,
			Phase:     ev.Log.Phase,
			Category:  ev.Log.Category,
			Timestamp: ev.Log.Timestamp,
		}
	case model.EventProgress:
		if ev.Progress == nil {
			return nil
		}
		p := ev.Progress
		return ProgressMessage{Type: TypeProgress, Current: p.Current, Total: p.Total, Target: p.Target, Status: p.Status}
	}
	return nil
}

func errorMessage(content string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Content: content}
}
