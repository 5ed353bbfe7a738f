package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration aceita no JSON tanto strings ("20ms", "1s") quanto números em nanossegundos
type Duration struct {
	time.Duration
}

// D cria um Duration a partir de time.Duration
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// MarshalJSON serializa como string legível
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration.String())
}

// UnmarshalJSON implementa json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v)
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("duração inválida %q: %w", v, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("duração inválida: %s", string(data))
	}
	return nil
}
