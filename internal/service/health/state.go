package health

import (
	"sync"
	"time"
)

// State 归集 worker 的健康计数器
// 由 Scheduler 创建并持有，sweeper / notifier / reporter 共享同一个实例
type State struct {
	mu sync.Mutex

	pollInterval     time.Duration
	failureThreshold int
	now              func() time.Time

	lastSuccessfulCycle time.Time
	lastSuccessfulSweep *time.Time
	consecutiveFailures int
	attempts            uint64
	successes           uint64
	failures            uint64
	notifyFailures      uint64
	unresolved          uint64
}

// Snapshot 某一时刻的健康快照
type Snapshot struct {
	Healthy             bool       `json:"healthy"`
	LastSuccessfulCycle time.Time  `json:"last_successful_cycle"`
	LastSuccessfulSweep *time.Time `json:"last_successful_sweep,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureThreshold    int        `json:"failure_threshold"`
	Attempts            uint64     `json:"attempts"`
	Successes           uint64     `json:"successes"`
	Failures            uint64     `json:"failures"`
	NotifyFailures      uint64     `json:"notify_failures"`
	UnresolvedAddresses uint64     `json:"unresolved_addresses"`
	Timestamp           time.Time  `json:"timestamp"`
}

type Option func(*State)

// WithClock 替换时间源 (测试用)
func WithClock(now func() time.Time) Option {
	return func(s *State) {
		s.now = now
	}
}

// NewState lastSuccessfulCycle 以进程启动时间为起点
func NewState(pollInterval time.Duration, failureThreshold int, opts ...Option) *State {
	s := &State{
		pollInterval:     pollInterval,
		failureThreshold: failureThreshold,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSuccessfulCycle = s.now()
	return s
}

// CycleSucceeded 队列查询成功: 清零连续失败
func (s *State) CycleSucceeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures = 0
	s.lastSuccessfulCycle = s.now()
}

// CycleFailed 队列查询失败，返回当前连续失败次数
// reachedThreshold 只在恰好达到阈值的那一次为 true
func (s *State) CycleFailed() (consecutive int, reachedThreshold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	return s.consecutiveFailures, s.consecutiveFailures == s.failureThreshold
}

func (s *State) RecordAttempt() {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
}

// RecordSuccess 一笔充值进入 COMPLETED
func (s *State) RecordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes++
	t := s.now()
	s.lastSuccessfulSweep = &t
}

func (s *State) RecordFailure() {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
}

func (s *State) RecordNotifyFailure() {
	s.mu.Lock()
	s.notifyFailures++
	s.mu.Unlock()
}

func (s *State) RecordUnresolved() {
	s.mu.Lock()
	s.unresolved++
	s.mu.Unlock()
}

func (s *State) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

// Snapshot healthy = 距上次成功周期 < 3 个轮询间隔 且 连续失败 < 阈值
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	fresh := now.Sub(s.lastSuccessfulCycle) < 3*s.pollInterval
	snap := Snapshot{
		Healthy:             fresh && s.consecutiveFailures < s.failureThreshold,
		LastSuccessfulCycle: s.lastSuccessfulCycle,
		ConsecutiveFailures: s.consecutiveFailures,
		FailureThreshold:    s.failureThreshold,
		Attempts:            s.attempts,
		Successes:           s.successes,
		Failures:            s.failures,
		NotifyFailures:      s.notifyFailures,
		UnresolvedAddresses: s.unresolved,
		Timestamp:           now,
	}
	if s.lastSuccessfulSweep != nil {
		t := *s.lastSuccessfulSweep
		snap.LastSuccessfulSweep = &t
	}
	return snap
}
