package models

import "encoding/json"

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Settings are per-browser UI preferences.
type Settings struct {
	RPCEndpoint      string `json:"rpc_endpoint"`
	BlockListEnabled bool   `json:"blocklist_enabled"`
	Theme            string `json:"theme"`
}

func DefaultSettings(endpoint string) Settings {
	return Settings{
		RPCEndpoint:      endpoint,
		BlockListEnabled: true,
		Theme:            ThemeLight,
	}
}

// ParseSettings decodes a stored bundle on top of the defaults.
func ParseSettings(raw string, defaults Settings) Settings {
	if raw == "" {
		return defaults
	}
	s := defaults
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return defaults
	}
	if s.Theme != ThemeLight && s.Theme != ThemeDark {
		s.Theme = defaults.Theme
	}
	return s
}

func (s Settings) String() string {
	data, _ := json.Marshal(s)
	return string(data)
}
