package services

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"blurtbb/internal/chain"
	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const notificationHistoryLimit = 500

// HistorySource reads an account's operation history.
type HistorySource interface {
	GetAccountHistory(ctx context.Context, account string, from int64, limit int) ([]chain.HistoryEntry, error)
}

// NotificationService derives notifications from account history and keeps
// per-account read marks.
type NotificationService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewNotificationService(db *gorm.DB, logger *logrus.Logger) *NotificationService {
	return &NotificationService{db: db, logger: logger}
}

// List returns the account's recent notifications, newest first.
func (s *NotificationService) List(ctx context.Context, src HistorySource, account string) ([]models.Notification, error) {
	entries, err := src.GetAccountHistory(ctx, account, -1, notificationHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", account, err)
	}
	lastSeen, err := s.LastSeen(account)
	if err != nil {
		return nil, err
	}

	var out []models.Notification
	for _, e := range entries {
		n, ok := notificationFor(account, e)
		if !ok {
			continue
		}
		n.Unread = e.Index > lastSeen
		out = append(out, n)
	}
	slices.SortStableFunc(out, func(a, b models.Notification) int {
		switch {
		case a.Index > b.Index:
			return -1
		case a.Index < b.Index:
			return 1
		}
		return 0
	})
	return out, nil
}

// UnreadCount counts notifications newer than the read mark.
func (s *NotificationService) UnreadCount(ctx context.Context, src HistorySource, account string) (int, error) {
	list, err := s.List(ctx, src, account)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range list {
		if n.Unread {
			count++
		}
	}
	return count, nil
}

// LastSeen returns the newest history index the account has read.
func (s *NotificationService) LastSeen(account string) (int64, error) {
	var mark models.NotificationMark
	err := s.db.Where("account = ?", account).Limit(1).Find(&mark).Error
	if err != nil {
		return 0, fmt.Errorf("read mark of %s: %w", account, err)
	}
	return mark.LastIndex, nil
}

// MarkRead moves the read mark forward to upTo. It never moves back.
func (s *NotificationService) MarkRead(account string, upTo int64) error {
	mark := models.NotificationMark{Account: account}
	if err := s.db.Where(models.NotificationMark{Account: account}).FirstOrCreate(&mark).Error; err != nil {
		return fmt.Errorf("read mark of %s: %w", account, err)
	}
	if upTo <= mark.LastIndex {
		return nil
	}
	if err := s.db.Model(&mark).Update("last_index", upTo).Error; err != nil {
		return fmt.Errorf("update read mark of %s: %w", account, err)
	}
	s.logger.WithFields(logrus.Fields{"account": account, "index": upTo}).Debug("Notifications marked read")
	return nil
}

func mentionRegexp(account string) *regexp.Regexp {
	return regexp.MustCompile(`(^|[^\w/@.])@` + regexp.QuoteMeta(account) + `\b`)
}

// notificationFor maps one history entry to a notification for account.
func notificationFor(account string, e chain.HistoryEntry) (models.Notification, bool) {
	n := models.Notification{Index: e.Index, Timestamp: e.Timestamp.Time}
	switch op := e.Op.Body.(type) {
	case *models.CommentOperation:
		if op.Author == account {
			return n, false
		}
		n.Actor = op.Author
		n.Author = op.Author
		n.Permlink = op.Permlink
		n.ParentAuthor = op.ParentAuthor
		n.ParentPermlink = op.ParentPermlink
		switch {
		case op.ParentAuthor == account:
			n.Kind = models.NotificationReply
		case mentionRegexp(account).MatchString(op.Body):
			n.Kind = models.NotificationMention
		default:
			return n, false
		}
		return n, true
	case *models.VoteOperation:
		if op.Author != account || op.Voter == account {
			return n, false
		}
		n.Kind = models.NotificationVote
		n.Actor = op.Voter
		n.Author = op.Author
		n.Permlink = op.Permlink
		n.Weight = int(op.Weight)
		return n, true
	}
	return n, false
}
