package models

import (
	"encoding/json"
	"fmt"
)

const (
	OpVote           = "vote"
	OpComment        = "comment"
	OpCommentOptions = "comment_options"
	OpDeleteComment  = "delete_comment"
)

// Operation is one tagged operation. It encodes as ["name", {body}].
type Operation struct {
	Name string
	Body any
}

func (o Operation) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{o.Name, o.Body})
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("operation: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("operation: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &o.Name); err != nil {
		return fmt.Errorf("operation name: %w", err)
	}

	var body any
	switch o.Name {
	case OpVote:
		body = &VoteOperation{}
	case OpComment:
		body = &CommentOperation{}
	case OpCommentOptions:
		body = &CommentOptionsOperation{}
	case OpDeleteComment:
		body = &DeleteCommentOperation{}
	default:
		body = &map[string]any{}
	}
	if err := json.Unmarshal(pair[1], body); err != nil {
		return fmt.Errorf("operation %s: %w", o.Name, err)
	}
	o.Body = body
	return nil
}

type VoteOperation struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int16  `json:"weight"`
}

type CommentOperation struct {
	ParentAuthor   string `json:"parent_author"`
	ParentPermlink string `json:"parent_permlink"`
	Author         string `json:"author"`
	Permlink       string `json:"permlink"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	JSONMetadata   string `json:"json_metadata"`
}

type Beneficiary struct {
	Account string `json:"account"`
	Weight  uint16 `json:"weight"`
}

type CommentOptionsOperation struct {
	Author               string `json:"author"`
	Permlink             string `json:"permlink"`
	MaxAcceptedPayout    string `json:"max_accepted_payout"`
	AllowVotes           bool   `json:"allow_votes"`
	AllowCurationRewards bool   `json:"allow_curation_rewards"`
	Extensions           []any  `json:"extensions"`
}

// BeneficiariesExtension builds the comment_options extension [0, {"beneficiaries": [...]}].
func BeneficiariesExtension(list []Beneficiary) any {
	return []any{0, map[string]any{"beneficiaries": list}}
}

type DeleteCommentOperation struct {
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
}

// Credentials carry the signing identity for a broadcast.
type Credentials struct {
	Username   string
	PostingKey string
}

// Receipt is the node's acknowledgement of a broadcast transaction.
type Receipt struct {
	ID       string `json:"id"`
	BlockNum int64  `json:"block_num"`
	TrxNum   int    `json:"trx_num"`
	Expired  bool   `json:"expired"`
}
