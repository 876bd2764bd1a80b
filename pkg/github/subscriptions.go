package github

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cometbot/comet/pkg/logger"
)

// Target is one chat that receives events for a repository.
type Target struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

// SubscriptionStore maps repository full names to the chats subscribed to
// them, persisted as one JSON file under the data directory.
type SubscriptionStore struct {
	subs map[string][]Target
	path string
	mu   sync.Mutex
}

func NewSubscriptionStore(dataDir string) *SubscriptionStore {
	s := &SubscriptionStore{
		subs: make(map[string][]Target),
		path: filepath.Join(dataDir, "subscriptions.json"),
	}
	s.load()
	return s
}

// Subscribe adds a target to a repository. Returns false if the target was
// already subscribed.
func (s *SubscriptionStore) Subscribe(repo string, t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs[repo] {
		if existing == t {
			return false
		}
	}
	s.subs[repo] = append(s.subs[repo], t)
	s.saveLocked()
	return true
}

// Unsubscribe removes a target from a repository. Returns false if the
// target was not subscribed.
func (s *SubscriptionStore) Unsubscribe(repo string, t Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := s.subs[repo]
	for i, existing := range targets {
		if existing == t {
			s.subs[repo] = append(targets[:i], targets[i+1:]...)
			if len(s.subs[repo]) == 0 {
				delete(s.subs, repo)
			}
			s.saveLocked()
			return true
		}
	}
	return false
}

// Targets returns the subscribers of a repository.
func (s *SubscriptionStore) Targets(repo string) []Target {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Target, len(s.subs[repo]))
	copy(out, s.subs[repo])
	return out
}

// ReposFor lists the repositories one chat is subscribed to, sorted.
func (s *SubscriptionStore) ReposFor(t Target) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var repos []string
	for repo, targets := range s.subs {
		for _, existing := range targets {
			if existing == t {
				repos = append(repos, repo)
				break
			}
		}
	}
	sort.Strings(repos)
	return repos
}

func (s *SubscriptionStore) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WarnCF("github", "Failed to read subscription store", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return
	}
	if err := json.Unmarshal(data, &s.subs); err != nil {
		logger.WarnCF("github", "Failed to parse subscription store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *SubscriptionStore) saveLocked() {
	data, err := json.MarshalIndent(s.subs, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		logger.WarnCF("github", "Failed to persist subscription store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
