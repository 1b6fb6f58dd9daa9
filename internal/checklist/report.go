package checklist

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/shiftboard/internal/model"
)

// Report is the persisted shift report. Frozen reports of closed shifts are
// read back by the KPI aggregator indefinitely, so the JSON shape is fixed:
//
//	{"duties":[{"title":"...","done":true}],"comment":"..."}
type Report struct {
	Duties  []model.Duty `json:"duties"`
	Comment string       `json:"comment,omitempty"`
}

// rawDuty tolerates partial records. A record needs a title or a done flag to
// count; a missing title reads as empty and never matches a checklist item.
type rawDuty struct {
	Title *string `json:"title"`
	Done  any     `json:"done"`
}

// ParseReport decodes a stored report. Empty, malformed or partial blobs
// never fail: they yield whatever duties could be recovered, possibly none.
// A bare JSON array of duty records is accepted as well.
func ParseReport(blob string) Report {
	data := bytes.TrimSpace([]byte(blob))
	if len(data) == 0 {
		return Report{}
	}

	var rawList []json.RawMessage
	var comment string

	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &rawList); err != nil {
			return Report{}
		}
	case '{':
		var obj struct {
			Duties  json.RawMessage `json:"duties"`
			Comment any             `json:"comment"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return Report{}
		}
		if s, ok := obj.Comment.(string); ok {
			comment = s
		}
		if len(obj.Duties) == 0 || json.Unmarshal(obj.Duties, &rawList) != nil {
			return Report{Comment: comment}
		}
	default:
		return Report{}
	}

	duties := make([]model.Duty, 0, len(rawList))
	for _, raw := range rawList {
		var rd rawDuty
		if err := json.Unmarshal(raw, &rd); err != nil || (rd.Title == nil && rd.Done == nil) {
			continue
		}
		var title string
		if rd.Title != nil {
			title = *rd.Title
		}
		duties = append(duties, model.Duty{Title: title, Done: truthy(rd.Done)})
	}
	return Report{Duties: duties, Comment: comment}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x == "true" || x == "1"
	default:
		return false
	}
}

// Encode serializes the report in its stable shape.
func (r Report) Encode() (string, error) {
	if r.Duties == nil {
		r.Duties = []model.Duty{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	return string(data), nil
}
