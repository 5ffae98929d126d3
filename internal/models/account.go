package models

import (
	"encoding/json"
	"fmt"
)

// KeyAuth is a [public_key, weight] pair of an authority.
type KeyAuth struct {
	Key    string
	Weight int
}

func (k *KeyAuth) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("key auth: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("key auth: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &k.Key); err != nil {
		return fmt.Errorf("key auth key: %w", err)
	}
	if err := json.Unmarshal(pair[1], &k.Weight); err != nil {
		return fmt.Errorf("key auth weight: %w", err)
	}
	return nil
}

type Authority struct {
	WeightThreshold int       `json:"weight_threshold"`
	KeyAuths        []KeyAuth `json:"key_auths"`
}

// HasKey reports whether pub alone can satisfy the authority.
func (a Authority) HasKey(pub string) bool {
	for _, k := range a.KeyAuths {
		if k.Key == pub && k.Weight >= a.WeightThreshold {
			return true
		}
	}
	return false
}

type Account struct {
	ID                  int64     `json:"id"`
	Name                string    `json:"name"`
	Created             ChainTime `json:"created"`
	PostCount           int       `json:"post_count"`
	Reputation          FlexInt64 `json:"reputation"`
	Balance             string    `json:"balance"`
	VestingShares       string    `json:"vesting_shares"`
	JSONMetadata        string    `json:"json_metadata"`
	PostingJSONMetadata string    `json:"posting_json_metadata"`
	Posting             Authority `json:"posting"`
	MemoKey             string    `json:"memo_key"`
}

// Profile is the "profile" object of an account's metadata.
type Profile struct {
	Name         string `json:"name"`
	About        string `json:"about"`
	Location     string `json:"location"`
	Website      string `json:"website"`
	ProfileImage string `json:"profile_image"`
}

// Profile prefers posting_json_metadata and falls back to json_metadata.
func (a *Account) Profile() Profile {
	for _, raw := range []string{a.PostingJSONMetadata, a.JSONMetadata} {
		var md struct {
			Profile Profile `json:"profile"`
		}
		if raw == "" || json.Unmarshal([]byte(raw), &md) != nil {
			continue
		}
		if md.Profile != (Profile{}) {
			return md.Profile
		}
	}
	return Profile{}
}
