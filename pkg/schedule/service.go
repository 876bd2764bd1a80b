package schedule

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/cometbot/comet/pkg/logger"
)

// Spec describes when a job fires: a cron expression, a fixed interval, or
// a single point in time.
type Spec struct {
	Kind    string `json:"kind"` // "cron", "every" or "at"
	Expr    string `json:"expr,omitempty"`
	EveryMS *int64 `json:"everyMs,omitempty"`
	AtMS    *int64 `json:"atMs,omitempty"`
}

// Payload tells the push handler what to deliver and where.
type Payload struct {
	// Kind selects the content: "message" pushes Message verbatim,
	// "bangumi_daily" pushes today's broadcast schedule.
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

type jobState struct {
	NextRunAtMS *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMS *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// Job is one persisted recurring push.
type Job struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Enabled bool     `json:"enabled"`
	Spec    Spec     `json:"spec"`
	Payload Payload  `json:"payload"`
	State   jobState `json:"state"`
}

type store struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

// Handler delivers one due job's payload.
type Handler func(job *Job) error

// Service fires persisted jobs on schedule. Jobs survive restarts in a
// JSON file under the data directory.
type Service struct {
	path    string
	store   *store
	onJob   Handler
	mu      sync.RWMutex
	running bool
	stop    chan struct{}
	gronx   *gronx.Gronx
}

func NewService(dataDir string, onJob Handler) *Service {
	s := &Service{
		path:  filepath.Join(dataDir, "schedule.json"),
		onJob: onJob,
		stop:  make(chan struct{}),
		gronx: gronx.New(),
	}
	s.load()
	return s
}

func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	now := time.Now().UnixMilli()
	for i := range s.store.Jobs {
		if s.store.Jobs[i].Enabled {
			s.store.Jobs[i].State.NextRunAtMS = s.nextRun(&s.store.Jobs[i].Spec, now)
		}
	}
	if err := s.saveLocked(); err != nil {
		return fmt.Errorf("failed to save schedule store: %w", err)
	}

	s.running = true
	go s.runLoop()

	logger.InfoCF("schedule", "Schedule service started", map[string]interface{}{
		"jobs": len(s.store.Jobs),
	})
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stop)
}

func (s *Service) runLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.fireDue()
		}
	}
}

func (s *Service) fireDue() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}

	now := time.Now().UnixMilli()
	var due []Job
	for i := range s.store.Jobs {
		job := &s.store.Jobs[i]
		if job.Enabled && job.State.NextRunAtMS != nil && *job.State.NextRunAtMS <= now {
			due = append(due, *job)
			// Cleared before execution so a slow handler cannot double-fire.
			job.State.NextRunAtMS = nil
		}
	}
	if len(due) > 0 {
		if err := s.saveLocked(); err != nil {
			logger.WarnCF("schedule", "Failed to save schedule store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	s.mu.Unlock()

	for i := range due {
		s.execute(&due[i])
	}
}

func (s *Service) execute(job *Job) {
	started := time.Now().UnixMilli()

	var err error
	if s.onJob != nil {
		err = s.onJob(job)
	}
	if err != nil {
		logger.ErrorCF("schedule", "Scheduled push failed", map[string]interface{}{
			"job":   job.Name,
			"error": err.Error(),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.store.Jobs {
		if s.store.Jobs[i].ID != job.ID {
			continue
		}
		s.store.Jobs[i].State.LastRunAtMS = &started
		if err != nil {
			s.store.Jobs[i].State.LastStatus = "error"
			s.store.Jobs[i].State.LastError = err.Error()
		} else {
			s.store.Jobs[i].State.LastStatus = "ok"
			s.store.Jobs[i].State.LastError = ""
		}

		if s.store.Jobs[i].Spec.Kind == "at" {
			s.store.Jobs[i].Enabled = false
		} else {
			s.store.Jobs[i].State.NextRunAtMS = s.nextRun(&s.store.Jobs[i].Spec, time.Now().UnixMilli())
		}
		break
	}

	if err := s.saveLocked(); err != nil {
		logger.WarnCF("schedule", "Failed to save schedule store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Service) nextRun(spec *Spec, nowMS int64) *int64 {
	switch spec.Kind {
	case "at":
		if spec.AtMS != nil && *spec.AtMS > nowMS {
			return spec.AtMS
		}
		return nil
	case "every":
		if spec.EveryMS == nil || *spec.EveryMS <= 0 {
			return nil
		}
		next := nowMS + *spec.EveryMS
		return &next
	case "cron":
		if spec.Expr == "" {
			return nil
		}
		next, err := gronx.NextTickAfter(spec.Expr, time.UnixMilli(nowMS), false)
		if err != nil {
			logger.WarnCF("schedule", "Invalid cron expression", map[string]interface{}{
				"expr":  spec.Expr,
				"error": err.Error(),
			})
			return nil
		}
		nextMS := next.UnixMilli()
		return &nextMS
	}
	return nil
}

// AddJob persists a new enabled job and returns it.
func (s *Service) AddJob(name string, spec Spec, payload Payload) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := Job{
		ID:      newJobID(),
		Name:    name,
		Enabled: true,
		Spec:    spec,
		Payload: payload,
		State: jobState{
			NextRunAtMS: s.nextRun(&spec, time.Now().UnixMilli()),
		},
	}

	s.store.Jobs = append(s.store.Jobs, job)
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.store.Jobs[:0]
	removed := false
	for _, job := range s.store.Jobs {
		if job.ID == id {
			removed = true
			continue
		}
		kept = append(kept, job)
	}
	s.store.Jobs = kept

	if removed {
		if err := s.saveLocked(); err != nil {
			logger.WarnCF("schedule", "Failed to save schedule store", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return removed
}

func (s *Service) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, len(s.store.Jobs))
	copy(out, s.store.Jobs)
	return out
}

func (s *Service) load() {
	s.store = &store{Version: 1, Jobs: []Job{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, s.store); err != nil {
		logger.WarnCF("schedule", "Failed to parse schedule store", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (s *Service) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.store, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

func newJobID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
