package todo

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Patch is a partial update to a todo. Nil fields are left unchanged. The
// Clear flags remove an optional field; on the wire they are an explicit
// JSON null.
type Patch struct {
	Content          *string
	Description      *string
	ClearDescription bool
	IsCompleted      *bool
	DueDate          *Date
	ClearDueDate     bool
	DueTime          *Clock
	ClearDueTime     bool
	Priority         *int
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Content == nil &&
		p.Description == nil && !p.ClearDescription &&
		p.IsCompleted == nil &&
		p.DueDate == nil && !p.ClearDueDate &&
		p.DueTime == nil && !p.ClearDueTime &&
		p.Priority == nil
}

// Apply returns a copy of t with the patch applied.
func (p Patch) Apply(t Todo) Todo {
	out := t.Clone()
	if p.Content != nil {
		out.Content = *p.Content
	}
	if p.ClearDescription {
		out.Description = nil
	} else if p.Description != nil {
		description := *p.Description
		out.Description = &description
	}
	if p.IsCompleted != nil {
		out.IsCompleted = *p.IsCompleted
	}
	if p.ClearDueDate {
		out.DueDate = nil
	} else if p.DueDate != nil {
		date := *p.DueDate
		out.DueDate = &date
	}
	if p.ClearDueTime {
		out.DueTime = nil
	} else if p.DueTime != nil {
		clock := *p.DueTime
		out.DueTime = &clock
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	return out
}

// MarshalJSON encodes only the fields the patch touches.
func (p Patch) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any)
	if p.Content != nil {
		fields["content"] = *p.Content
	}
	if p.ClearDescription {
		fields["description"] = nil
	} else if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.IsCompleted != nil {
		fields["isCompleted"] = *p.IsCompleted
	}
	if p.ClearDueDate {
		fields["dueDate"] = nil
	} else if p.DueDate != nil {
		fields["dueDate"] = *p.DueDate
	}
	if p.ClearDueTime {
		fields["dueTime"] = nil
	} else if p.DueTime != nil {
		fields["dueTime"] = *p.DueTime
	}
	if p.Priority != nil {
		fields["priority"] = *p.Priority
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes a partial todo. Unknown fields are rejected.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Patch
	for name, raw := range fields {
		isNull := bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
		var err error
		switch name {
		case "content":
			if isNull {
				return fmt.Errorf("patch field %q cannot be null", name)
			}
			out.Content = new(string)
			err = json.Unmarshal(raw, out.Content)
		case "description":
			if isNull {
				out.ClearDescription = true
				continue
			}
			out.Description = new(string)
			err = json.Unmarshal(raw, out.Description)
		case "isCompleted":
			if isNull {
				return fmt.Errorf("patch field %q cannot be null", name)
			}
			out.IsCompleted = new(bool)
			err = json.Unmarshal(raw, out.IsCompleted)
		case "dueDate":
			if isNull {
				out.ClearDueDate = true
				continue
			}
			out.DueDate = new(Date)
			err = json.Unmarshal(raw, out.DueDate)
		case "dueTime":
			if isNull {
				out.ClearDueTime = true
				continue
			}
			out.DueTime = new(Clock)
			err = json.Unmarshal(raw, out.DueTime)
		case "priority":
			if isNull {
				return fmt.Errorf("patch field %q cannot be null", name)
			}
			out.Priority = new(int)
			err = json.Unmarshal(raw, out.Priority)
		default:
			return fmt.Errorf("unknown patch field %q", name)
		}
		if err != nil {
			return fmt.Errorf("decode patch field %q: %w", name, err)
		}
	}

	*p = out
	return nil
}
