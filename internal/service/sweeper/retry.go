package sweeper

import "time"

// maxBackoffShift 防止 base << retryCount 溢出
const maxBackoffShift = 20

// RetryPolicy 失败后的重试与退避规则
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// RetryDecision 一次失败后记录应该变成什么样
type RetryDecision struct {
	RetryCount int
	Terminal   bool          // 达到 MaxRetries，记录进入 FAILED
	Delay      time.Duration // 建议的下次重试间隔，仅写入 metadata
	NextRetry  time.Time
}

// Next 根据失败前的 retryCount 计算下一步
// delay = BaseDelay * 2^retryCount，指数用自增之前的值
func (p RetryPolicy) Next(retryCount int, now time.Time) RetryDecision {
	shift := retryCount
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	next := retryCount + 1
	delay := p.BaseDelay << uint(shift)
	return RetryDecision{
		RetryCount: next,
		Terminal:   next >= p.MaxRetries,
		Delay:      delay,
		NextRetry:  now.Add(delay),
	}
}
