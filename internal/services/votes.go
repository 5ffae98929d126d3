package services

import (
	"fmt"
	"slices"
	"strings"

	"blurtbb/internal/models"
)

const (
	LabelPendingPayout = "Pending payout"
	LabelPayout        = "Payout"
)

// Voter is one row of a vote popover.
type Voter struct {
	Name    string
	Percent float64 // vote strength, -100..100
	weight  int64
}

// VoteView is everything a vote fragment shows.
type VoteView struct {
	Author      string
	Permlink    string
	Root        bool
	Viewer      string
	Voted       bool
	Voters      []Voter
	Count       int
	PayoutLabel string
	Payout      string
}

// NewVoteView derives the vote fragment state of node for viewer (empty when
// nobody is logged in).
func NewVoteView(node *models.Content, viewer string, root bool) VoteView {
	v := VoteView{
		Author:   node.Author,
		Permlink: node.Permlink,
		Root:     root,
		Viewer:   viewer,
		Voted:    node.VotedBy(viewer),
		Count:    len(node.ActiveVotes),
		Payout:   payoutValue(node),
	}
	if root {
		v.PayoutLabel = LabelPendingPayout
	} else {
		v.PayoutLabel = LabelPayout
	}

	v.Voters = make([]Voter, 0, len(node.ActiveVotes))
	for _, av := range node.ActiveVotes {
		v.Voters = append(v.Voters, Voter{
			Name:    av.Voter,
			Percent: float64(av.Percent) / 100,
			weight:  int64(av.Rshares),
		})
	}
	slices.SortStableFunc(v.Voters, func(a, b Voter) int {
		switch {
		case a.weight > b.weight:
			return -1
		case a.weight < b.weight:
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return v
}

// payoutValue shows the pending payout, or the paid total once the payout
// window closed.
func payoutValue(node *models.Content) string {
	pending, symbol := models.ParseAsset(node.PendingPayoutValue)
	if pending > 0 || (node.TotalPayoutValue == "" && node.CuratorPayoutValue == "") {
		return formatAsset(pending, symbol)
	}
	total, totalSymbol := models.ParseAsset(node.TotalPayoutValue)
	curator, _ := models.ParseAsset(node.CuratorPayoutValue)
	if totalSymbol == "" {
		totalSymbol = symbol
	}
	return formatAsset(total+curator, totalSymbol)
}

func formatAsset(amount float64, symbol string) string {
	if symbol == "" {
		symbol = "BLURT"
	}
	return fmt.Sprintf("%.3f %s", amount, symbol)
}
