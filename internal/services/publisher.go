package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	maxTitleLength = 255
	maxTags        = 8
	maxVoteWeight  = 10000
)

var (
	ErrNotLoggedIn = errors.New("you need to log in first")
	ErrEmptyTitle  = errors.New("title is required")
	ErrLongTitle   = errors.New("title is too long")
	ErrEmptyBody   = errors.New("body is required")
	ErrNoCategory  = errors.New("category is required")
	ErrNotAuthor   = errors.New("only the author can change this post")
)

// Broadcaster signs and submits operations.
type Broadcaster interface {
	Broadcast(ctx context.Context, ops []models.Operation, creds models.Credentials) (*models.Receipt, error)
}

// PublisherConfig sets the fields every new post carries.
type PublisherConfig struct {
	App               string // "name/version" stored in json_metadata
	MaxAcceptedPayout string
	Beneficiary       string
	BeneficiaryWeight int // basis points
}

// Draft is a new topic as typed by the user.
type Draft struct {
	Category string
	Title    string
	Body     string
	Tags     []string
}

// Submission identifies the content a broadcast created or changed.
type Submission struct {
	Author   string
	Permlink string
	Receipt  *models.Receipt
}

// Publisher turns forum actions into chain operations.
type Publisher struct {
	cfg    PublisherConfig
	logger *logrus.Logger
	now    func() time.Time
}

func NewPublisher(cfg PublisherConfig, logger *logrus.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger, now: time.Now}
}

// NewTopic posts a root post under the category tag.
func (p *Publisher) NewTopic(ctx context.Context, b Broadcaster, creds models.Credentials, d Draft) (*Submission, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(d.Title)
	switch {
	case d.Category == "":
		return nil, ErrNoCategory
	case title == "":
		return nil, ErrEmptyTitle
	case len(title) > maxTitleLength:
		return nil, ErrLongTitle
	case strings.TrimSpace(d.Body) == "":
		return nil, ErrEmptyBody
	}

	permlink := TopicPermlink(title, p.now())
	md := models.Metadata{
		Tags:   normalizeTags(d.Category, d.Tags),
		App:    p.cfg.App,
		Format: "markdown",
	}
	ops := []models.Operation{
		{Name: models.OpComment, Body: models.CommentOperation{
			ParentPermlink: d.Category,
			Author:         creds.Username,
			Permlink:       permlink,
			Title:          title,
			Body:           d.Body,
			JSONMetadata:   md.String(),
		}},
		{Name: models.OpCommentOptions, Body: p.commentOptions(creds.Username, permlink)},
	}
	return p.broadcast(ctx, b, creds, creds.Username, permlink, ops)
}

// Reply answers parent.
func (p *Publisher) Reply(ctx context.Context, b Broadcaster, creds models.Credentials, parent *models.Content, body string) (*Submission, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	if !parent.Exists() {
		return nil, fmt.Errorf("%w: reply target", models.ErrNotFound)
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	permlink := ReplyPermlink(parent.Author, p.now())
	md := models.Metadata{
		Tags:   normalizeTags(parent.Category, nil),
		App:    p.cfg.App,
		Format: "markdown",
	}
	ops := []models.Operation{
		{Name: models.OpComment, Body: models.CommentOperation{
			ParentAuthor:   parent.Author,
			ParentPermlink: parent.Permlink,
			Author:         creds.Username,
			Permlink:       permlink,
			Body:           body,
			JSONMetadata:   md.String(),
		}},
		{Name: models.OpCommentOptions, Body: p.commentOptions(creds.Username, permlink)},
	}
	return p.broadcast(ctx, b, creds, creds.Username, permlink, ops)
}

// Edit rewrites existing in place. Replies keep an empty title.
func (p *Publisher) Edit(ctx context.Context, b Broadcaster, creds models.Credentials, existing *models.Content, title, body string) (*Submission, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	if !existing.Exists() {
		return nil, fmt.Errorf("%w: edit target", models.ErrNotFound)
	}
	if existing.Author != creds.Username {
		return nil, ErrNotAuthor
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	title = strings.TrimSpace(title)
	if existing.IsRoot() {
		if title == "" {
			return nil, ErrEmptyTitle
		}
		if len(title) > maxTitleLength {
			return nil, ErrLongTitle
		}
	} else {
		title = ""
	}

	md := existing.Metadata()
	md.App = p.cfg.App
	if md.Format == "" {
		md.Format = "markdown"
	}
	ops := []models.Operation{
		{Name: models.OpComment, Body: models.CommentOperation{
			ParentAuthor:   existing.ParentAuthor,
			ParentPermlink: existing.ParentPermlink,
			Author:         existing.Author,
			Permlink:       existing.Permlink,
			Title:          title,
			Body:           body,
			JSONMetadata:   md.String(),
		}},
	}
	return p.broadcast(ctx, b, creds, existing.Author, existing.Permlink, ops)
}

// Delete removes a post the user wrote. The chain refuses posts with replies
// or positive votes.
func (p *Publisher) Delete(ctx context.Context, b Broadcaster, creds models.Credentials, author, permlink string) (*Submission, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	if author != creds.Username {
		return nil, ErrNotAuthor
	}
	ops := []models.Operation{
		{Name: models.OpDeleteComment, Body: models.DeleteCommentOperation{Author: author, Permlink: permlink}},
	}
	return p.broadcast(ctx, b, creds, author, permlink, ops)
}

// Vote casts a vote of weight basis points; 0 removes an earlier vote.
func (p *Publisher) Vote(ctx context.Context, b Broadcaster, creds models.Credentials, author, permlink string, weight int) (*Submission, error) {
	if err := checkCredentials(creds); err != nil {
		return nil, err
	}
	weight = min(max(weight, -maxVoteWeight), maxVoteWeight)
	ops := []models.Operation{
		{Name: models.OpVote, Body: models.VoteOperation{
			Voter:    creds.Username,
			Author:   author,
			Permlink: permlink,
			Weight:   int16(weight),
		}},
	}
	return p.broadcast(ctx, b, creds, author, permlink, ops)
}

func (p *Publisher) broadcast(ctx context.Context, b Broadcaster, creds models.Credentials, author, permlink string, ops []models.Operation) (*Submission, error) {
	receipt, err := b.Broadcast(ctx, ops, creds)
	if err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"account": creds.Username,
			"post":    models.ContentKey(author, permlink),
			"op":      ops[0].Name,
		}).Warn("Broadcast failed")
		return nil, fmt.Errorf("broadcast %s: %w", ops[0].Name, err)
	}
	return &Submission{Author: author, Permlink: permlink, Receipt: receipt}, nil
}

func (p *Publisher) commentOptions(author, permlink string) models.CommentOptionsOperation {
	opts := models.CommentOptionsOperation{
		Author:               author,
		Permlink:             permlink,
		MaxAcceptedPayout:    p.cfg.MaxAcceptedPayout,
		AllowVotes:           true,
		AllowCurationRewards: true,
		Extensions:           []any{},
	}
	if p.cfg.Beneficiary != "" && p.cfg.BeneficiaryWeight > 0 && p.cfg.Beneficiary != author {
		opts.Extensions = append(opts.Extensions, models.BeneficiariesExtension([]models.Beneficiary{
			{Account: p.cfg.Beneficiary, Weight: uint16(p.cfg.BeneficiaryWeight)},
		}))
	}
	return opts
}

func checkCredentials(creds models.Credentials) error {
	if creds.Username == "" || creds.PostingKey == "" {
		return ErrNotLoggedIn
	}
	return nil
}

// normalizeTags puts the category first, lowercases, and drops duplicates.
func normalizeTags(category string, extra []string) []string {
	tags := make([]string, 0, len(extra)+1)
	seen := map[string]bool{}
	for _, t := range append([]string{category}, extra...) {
		t = slugify(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
