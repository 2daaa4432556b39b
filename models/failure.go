package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// Failure is the persisted context of the last failed run.
type Failure struct {
	Step    int    `json:"step"`
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func (f Failure) String() string {
	return fmt.Sprintf("Step %d: %s", f.Step, f.Message)
}

func (f Failure) Value() (driver.Value, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *Failure) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New(fmt.Sprint("failed to unmarshal failure value:", value))
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, f)
}
