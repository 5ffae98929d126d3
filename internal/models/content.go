package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChainTimeLayout is the timestamp layout used by the node (UTC, no zone suffix).
const ChainTimeLayout = "2006-01-02T15:04:05"

// ChainTime is a chain timestamp. It always carries UTC.
type ChainTime struct {
	time.Time
}

func NewChainTime(t time.Time) ChainTime {
	return ChainTime{Time: t.UTC().Truncate(time.Second)}
}

func (t ChainTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(ChainTimeLayout))
}

func (t *ChainTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("chain time: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(ChainTimeLayout, strings.TrimSuffix(s, "Z"), time.UTC)
	if err != nil {
		return fmt.Errorf("chain time %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// FlexInt64 decodes integers the node sends either as numbers or as strings.
type FlexInt64 int64

func (n *FlexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("integer %s: %w", data, err)
	}
	*n = FlexInt64(v)
	return nil
}

// ActiveVote is one entry of a content node's active_votes.
type ActiveVote struct {
	Voter   string    `json:"voter"`
	Weight  FlexInt64 `json:"weight"`
	Rshares FlexInt64 `json:"rshares"`
	Percent int       `json:"percent"`
	Time    ChainTime `json:"time"`
}

// Content is a post or a reply as returned by the node.
// Replies is filled by the tree builder and never serialized.
type Content struct {
	ID                 int64        `json:"id"`
	Author             string       `json:"author"`
	Permlink           string       `json:"permlink"`
	Category           string       `json:"category"`
	Title              string       `json:"title"`
	Body               string       `json:"body"`
	ParentAuthor       string       `json:"parent_author"`
	ParentPermlink     string       `json:"parent_permlink"`
	JSONMetadata       string       `json:"json_metadata"`
	Created            ChainTime    `json:"created"`
	LastUpdate         ChainTime    `json:"last_update"`
	ActiveVotes        []ActiveVote `json:"active_votes"`
	NetVotes           int          `json:"net_votes"`
	ChildCount         int          `json:"children"`
	Depth              int          `json:"depth"`
	URL                string       `json:"url"`
	PendingPayoutValue string       `json:"pending_payout_value"`
	TotalPayoutValue   string       `json:"total_payout_value"`
	CuratorPayoutValue string       `json:"curator_payout_value"`

	Replies []*Content `json:"-"`
}

// ContentKey builds the "@author/permlink" key.
func ContentKey(author, permlink string) string {
	return "@" + author + "/" + permlink
}

// ParseContentKey splits "@author/permlink" (the leading @ is optional).
func ParseContentKey(key string) (author, permlink string, err error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "@")
	author, permlink, ok := strings.Cut(key, "/")
	if !ok || author == "" || permlink == "" {
		return "", "", fmt.Errorf("invalid content key %q", key)
	}
	return author, permlink, nil
}

func (c *Content) Key() string {
	return ContentKey(c.Author, c.Permlink)
}

// Exists reports whether the node answered with real content.
// The node signals a missing post with an empty author.
func (c *Content) Exists() bool {
	return c != nil && c.Author != ""
}

func (c *Content) IsRoot() bool {
	return c.ParentAuthor == ""
}

// VotedBy reports whether account is among the active voters.
func (c *Content) VotedBy(account string) bool {
	if account == "" {
		return false
	}
	for _, v := range c.ActiveVotes {
		if v.Voter == account {
			return true
		}
	}
	return false
}

// Metadata parses json_metadata. Malformed metadata yields an empty value.
func (c *Content) Metadata() Metadata {
	return ParseMetadata(c.JSONMetadata)
}
