package services

import (
	"fmt"
	"strings"
	"sync"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BlockSnapshot is an immutable copy of the block-list. A nil snapshot
// blocks nothing.
type BlockSnapshot struct {
	authors map[string]struct{}
	posts   map[string]struct{}
}

// Blocks matches by author or by the exact author/permlink pair.
func (s *BlockSnapshot) Blocks(author, permlink string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.authors[author]; ok {
		return true
	}
	_, ok := s.posts[models.ContentKey(author, permlink)]
	return ok
}

// Len counts the entries.
func (s *BlockSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.authors) + len(s.posts)
}

// BlockListService stores the moderation block-list and serves snapshots of it.
type BlockListService struct {
	db     *gorm.DB
	logger *logrus.Logger

	mu   sync.RWMutex
	snap *BlockSnapshot
}

func NewBlockListService(db *gorm.DB, logger *logrus.Logger) (*BlockListService, error) {
	s := &BlockListService{db: db, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the current list.
func (s *BlockListService) Snapshot() *BlockSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reload rebuilds the snapshot from the database.
func (s *BlockListService) Reload() error {
	var authors []models.BlockedAuthor
	if err := s.db.Find(&authors).Error; err != nil {
		return fmt.Errorf("load blocked authors: %w", err)
	}
	var posts []models.BlockedPost
	if err := s.db.Find(&posts).Error; err != nil {
		return fmt.Errorf("load blocked posts: %w", err)
	}

	snap := &BlockSnapshot{
		authors: make(map[string]struct{}, len(authors)),
		posts:   make(map[string]struct{}, len(posts)),
	}
	for _, a := range authors {
		snap.authors[a.Account] = struct{}{}
	}
	for _, p := range posts {
		snap.posts[models.ContentKey(p.Author, p.Permlink)] = struct{}{}
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	s.logger.WithFields(logrus.Fields{
		"authors": len(authors),
		"posts":   len(posts),
	}).Debug("Block-list loaded")
	return nil
}

// BlockAuthor hides everything account writes.
func (s *BlockListService) BlockAuthor(account, reason, by string) error {
	account = strings.TrimPrefix(strings.TrimSpace(account), "@")
	if account == "" {
		return fmt.Errorf("account is required")
	}
	entry := models.BlockedAuthor{Account: account, Reason: reason, AddedBy: by}
	if err := s.db.Where(models.BlockedAuthor{Account: account}).FirstOrCreate(&entry).Error; err != nil {
		return fmt.Errorf("block author %s: %w", account, err)
	}
	s.logger.WithFields(logrus.Fields{"account": account, "by": by}).Info("Author blocked")
	return s.Reload()
}

func (s *BlockListService) UnblockAuthor(account string) error {
	if err := s.db.Where("account = ?", account).Delete(&models.BlockedAuthor{}).Error; err != nil {
		return fmt.Errorf("unblock author %s: %w", account, err)
	}
	return s.Reload()
}

// BlockPost hides one post and its replies.
func (s *BlockListService) BlockPost(author, permlink, reason, by string) error {
	if author == "" || permlink == "" {
		return fmt.Errorf("author and permlink are required")
	}
	entry := models.BlockedPost{Author: author, Permlink: permlink, Reason: reason, AddedBy: by}
	if err := s.db.Where(models.BlockedPost{Author: author, Permlink: permlink}).FirstOrCreate(&entry).Error; err != nil {
		return fmt.Errorf("block post %s: %w", models.ContentKey(author, permlink), err)
	}
	s.logger.WithFields(logrus.Fields{"post": models.ContentKey(author, permlink), "by": by}).Info("Post blocked")
	return s.Reload()
}

func (s *BlockListService) UnblockPost(author, permlink string) error {
	if err := s.db.Where("author = ? AND permlink = ?", author, permlink).Delete(&models.BlockedPost{}).Error; err != nil {
		return fmt.Errorf("unblock post %s: %w", models.ContentKey(author, permlink), err)
	}
	return s.Reload()
}

// Entries lists the stored rows, newest first.
func (s *BlockListService) Entries() ([]models.BlockedAuthor, []models.BlockedPost, error) {
	var authors []models.BlockedAuthor
	if err := s.db.Order("created_at DESC").Find(&authors).Error; err != nil {
		return nil, nil, err
	}
	var posts []models.BlockedPost
	if err := s.db.Order("created_at DESC").Find(&posts).Error; err != nil {
		return nil, nil, err
	}
	return authors, posts, nil
}
