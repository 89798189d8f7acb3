package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/channel-bridge/internal/message"
)

var validate = validator.New()

func validateRequest(req message.SendRequest) error {
	if err := validate.Struct(req); err != nil {
		return message.InvalidRequestf("%v", err)
	}
	if req.IsTemplate() {
		if req.TemplateName == "" {
			return message.InvalidRequestf("templateName is required for template messages")
		}
		return nil
	}
	if req.Text == "" && req.MediaURL == "" {
		return message.InvalidRequestf("text or mediaUrl is required")
	}
	return nil
}

type templateComponent struct {
	Type       string              `json:"type"`
	Parameters []templateParameter `json:"parameters"`
}

type templateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// templateComponents emits one body component per parameter, in order.
func templateComponents(params message.TemplateParams) []templateComponent {
	components := make([]templateComponent, 0, len(params))
	for _, p := range params {
		components = append(components, templateComponent{
			Type:       "body",
			Parameters: []templateParameter{{Type: "text", Text: p.Value}},
		})
	}
	return components
}

// templateSummary renders a template send as "name(key=value, ...)" so the
// stored record carries a readable body.
func templateSummary(name string, params message.TemplateParams) string {
	if len(params) == 0 {
		return name
	}
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p.Key+"="+p.Value)
	}
	return name + "(" + strings.Join(pairs, ", ") + ")"
}

// epoch is a channel timestamp that may arrive as a JSON number or a numeric string.
type epoch int64

// maxEpoch keeps seconds*1000 within int64.
const maxEpoch = math.MaxInt64 / 1000

func (e *epoch) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		*e = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("timestamp %q: %w", s, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > maxEpoch {
			return fmt.Errorf("timestamp %q: not a whole number in range", s)
		}
		n = int64(f)
	}
	if n > maxEpoch || n < -maxEpoch {
		return fmt.Errorf("timestamp %q: out of range", s)
	}
	*e = epoch(n)
	return nil
}

// fromSeconds converts a seconds-since-epoch channel timestamp.
func fromSeconds(sec epoch) time.Time {
	return time.UnixMilli(int64(sec) * 1000).UTC()
}

// fromMillis converts a timestamp that is already millisecond precision.
func fromMillis(ms epoch) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}

func decodePayload(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return message.MalformedPayloadf("empty body")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return message.MalformedPayloadf("%v", err)
	}
	return nil
}

// lookupString walks maps by key and slices by index and returns the string
// found there. A slice at the end of the path yields its first element.
func lookupString(v any, path ...any) string {
	cur := v
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return ""
			}
			cur = m[key]
		case int:
			s, ok := cur.([]any)
			if !ok || key >= len(s) {
				return ""
			}
			cur = s[key]
		}
	}
	if s, ok := cur.([]any); ok && len(s) > 0 {
		cur = s[0]
	}
	str, _ := cur.(string)
	return str
}
