package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"blurtbb/internal/models"
)

const maxDiscussionLimit = 100

// Query selects a page of discussions. StartAuthor/StartPermlink continue
// from the last item of the previous page.
type Query struct {
	Tag           string `json:"tag"`
	Limit         int    `json:"limit"`
	StartAuthor   string `json:"start_author,omitempty"`
	StartPermlink string `json:"start_permlink,omitempty"`
}

// GlobalProperties holds the fields of get_dynamic_global_properties used
// to reference a recent block.
type GlobalProperties struct {
	HeadBlockNumber uint32           `json:"head_block_number"`
	HeadBlockID     string           `json:"head_block_id"`
	Time            models.ChainTime `json:"time"`
}

// HistoryEntry is one [index, {...}] element of get_account_history.
type HistoryEntry struct {
	Index     int64
	TrxID     string           `json:"trx_id"`
	Block     int64            `json:"block"`
	Timestamp models.ChainTime `json:"timestamp"`
	Op        models.Operation `json:"op"`
}

func (h *HistoryEntry) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("history entry: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("history entry: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &h.Index); err != nil {
		return fmt.Errorf("history index: %w", err)
	}
	type body HistoryEntry
	var b body
	if err := json.Unmarshal(pair[1], &b); err != nil {
		return fmt.Errorf("history %d: %w", h.Index, err)
	}
	b.Index = h.Index
	*h = HistoryEntry(b)
	return nil
}

// GetAccounts fetches accounts by name; unknown names are omitted by the node.
func (c *Client) GetAccounts(ctx context.Context, names []string) ([]models.Account, error) {
	var accounts []models.Account
	if err := c.Call(ctx, "condenser_api.get_accounts", []any{names}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetAccount fetches one account or returns models.ErrAccountNotFound.
func (c *Client) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	accounts, err := c.GetAccounts(ctx, []string{name})
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Name == name {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, name)
}

// GetContent returns the content at author/permlink. A missing post is not an
// error: the node answers with an empty author, reported by Content.Exists.
func (c *Client) GetContent(ctx context.Context, author, permlink string) (*models.Content, error) {
	var content models.Content
	if err := c.Call(ctx, "condenser_api.get_content", []any{author, permlink}, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// GetContentReplies returns the direct replies of author/permlink.
func (c *Client) GetContentReplies(ctx context.Context, author, permlink string) ([]*models.Content, error) {
	var replies []*models.Content
	if err := c.Call(ctx, "condenser_api.get_content_replies", []any{author, permlink}, &replies); err != nil {
		return nil, err
	}
	return replies, nil
}

// GetDiscussionsByCreated lists the newest root posts carrying q.Tag.
func (c *Client) GetDiscussionsByCreated(ctx context.Context, q Query) ([]*models.Content, error) {
	return c.discussions(ctx, "condenser_api.get_discussions_by_created", q)
}

// GetDiscussionsByBlog lists an account's blog; q.Tag is the account name.
func (c *Client) GetDiscussionsByBlog(ctx context.Context, q Query) ([]*models.Content, error) {
	return c.discussions(ctx, "condenser_api.get_discussions_by_blog", q)
}

func (c *Client) discussions(ctx context.Context, method string, q Query) ([]*models.Content, error) {
	if q.Limit <= 0 || q.Limit > maxDiscussionLimit {
		q.Limit = maxDiscussionLimit
	}
	var posts []*models.Content
	if err := c.Call(ctx, method, []any{q}, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetAccountHistory returns up to limit+1 entries ending at from (-1 for the newest).
func (c *Client) GetAccountHistory(ctx context.Context, account string, from int64, limit int) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := c.Call(ctx, "condenser_api.get_account_history", []any{account, from, limit}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (*GlobalProperties, error) {
	var props GlobalProperties
	if err := c.Call(ctx, "condenser_api.get_dynamic_global_properties", nil, &props); err != nil {
		return nil, err
	}
	return &props, nil
}

// GetTransactionHex returns the node's binary serialization of tx.
func (c *Client) GetTransactionHex(ctx context.Context, tx *Transaction) (string, error) {
	var hex string
	if err := c.Call(ctx, "condenser_api.get_transaction_hex", []any{tx}, &hex); err != nil {
		return "", err
	}
	return hex, nil
}

// BroadcastTransactionSynchronous submits a signed tx and waits for inclusion.
func (c *Client) BroadcastTransactionSynchronous(ctx context.Context, tx *Transaction) (*models.Receipt, error) {
	var receipt models.Receipt
	if err := c.CallOnce(ctx, "condenser_api.broadcast_transaction_synchronous", []any{tx}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}
