package health

import (
	"go.uber.org/zap"

	"github.com/Aduersarius/polybet-sub009/pkg/monitor"
)

// Reporter 定期把健康快照写入日志和指标
type Reporter struct {
	state   *State
	logger  *zap.Logger
	metrics *monitor.SweeperMetrics
}

func NewReporter(state *State, logger *zap.Logger, metrics *monitor.SweeperMetrics) *Reporter {
	return &Reporter{state: state, logger: logger, metrics: metrics}
}

// Emit 输出一次快照，reason 区分定时输出和退出前输出
func (r *Reporter) Emit(reason string) Snapshot {
	snap := r.state.Snapshot()

	if r.metrics != nil {
		r.metrics.ConsecutiveFailures.Set(float64(snap.ConsecutiveFailures))
		r.metrics.LastSuccessfulCycleTime.Set(float64(snap.LastSuccessfulCycle.Unix()))
	}

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Bool("healthy", snap.Healthy),
		zap.Time("last_successful_cycle", snap.LastSuccessfulCycle),
		zap.Int("consecutive_failures", snap.ConsecutiveFailures),
		zap.Uint64("attempts", snap.Attempts),
		zap.Uint64("successes", snap.Successes),
		zap.Uint64("failures", snap.Failures),
		zap.Uint64("notify_failures", snap.NotifyFailures),
		zap.Uint64("unresolved_addresses", snap.UnresolvedAddresses),
	}
	if snap.LastSuccessfulSweep != nil {
		fields = append(fields, zap.Time("last_successful_sweep", *snap.LastSuccessfulSweep))
	}

	if snap.Healthy {
		r.logger.Info("归集服务健康状态", fields...)
	} else {
		r.logger.Warn("归集服务不健康", fields...)
	}
	return snap
}
