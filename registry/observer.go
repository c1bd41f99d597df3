package registry

import "go.uber.org/zap"

// LogObserver writes registry lifecycle events to a zap logger at debug level.
type LogObserver struct {
	log *zap.Logger
}

// NewLogObserver returns an observer logging to l. A nil logger is replaced
// with a no-op logger.
func NewLogObserver(l *zap.Logger) *LogObserver {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogObserver{log: l}
}

func (o *LogObserver) OnRegistryEvent(e Event) {
	switch e.Type {
	case EventPinned:
		o.log.Debug("handle pinned", zap.Uint64("handle", uint64(e.Handle)))
	case EventReleased:
		o.log.Debug("handle released",
			zap.Uint64("handle", uint64(e.Handle)),
			zap.Stringer("outcome", e.Outcome))
	}
}
