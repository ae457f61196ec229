package address

import (
	"encoding/json"
	"fmt"
)

// wire is the JSON form used by the HTTP API.
type wire struct {
	Type   Type           `json:"type"`
	Handle *ProcessHandle `json:"handle,omitempty"`
	PID    *uint32        `json:"pid,omitempty"`
	URL    string         `json:"url,omitempty"`
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	w := wire{Type: d.typ}
	switch d.typ {
	case TypeProcessHandle:
		h, ok := d.ProcessHandle()
		if !ok {
			return nil, fmt.Errorf("address: malformed process handle payload")
		}
		w.Handle = &h
	case TypeUnixPID:
		pid, ok := d.PID()
		if !ok {
			return nil, fmt.Errorf("address: malformed pid payload")
		}
		w.PID = &pid
	case TypeApplicationURL:
		w.URL = d.data
	default:
		return nil, fmt.Errorf("address: unknown descriptor type %q", d.typ)
	}
	return json.Marshal(w)
}

func (d *Descriptor) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case TypeProcessHandle:
		if w.Handle == nil {
			return fmt.Errorf("address: handle required for type %q", w.Type)
		}
		*d = FromProcessHandle(*w.Handle)
	case TypeUnixPID:
		if w.PID == nil {
			return fmt.Errorf("address: pid required for type %q", w.Type)
		}
		*d = FromUnixPID(*w.PID)
	case TypeApplicationURL:
		if w.URL == "" {
			return fmt.Errorf("address: url required for type %q", w.Type)
		}
		*d = FromURL(w.URL)
	default:
		return fmt.Errorf("address: unknown descriptor type %q", w.Type)
	}
	return nil
}
