package progress

import "go.uber.org/zap"

// LogObserver emits structured logs for each event. It is the default
// observer wired by the CLI so runs are followable from the terminal.
type LogObserver struct {
	logger *zap.Logger
}

// NewLogObserver wires a Zap logger to the observer interface.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

// Observe logs the event using structured fields.
func (o *LogObserver) Observe(evt Event) {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID.String()),
		zap.String("stage", string(evt.Stage)),
	}
	if evt.Source != "" {
		fields = append(fields, zap.String("source", evt.Source))
	}
	if evt.URL != "" {
		fields = append(fields, zap.String("url", evt.URL))
	}
	if evt.Method != "" {
		fields = append(fields, zap.String("method", string(evt.Method)))
	}
	if evt.Status != "" {
		fields = append(fields, zap.String("status", string(evt.Status)))
	}
	if evt.Total > 0 {
		fields = append(fields, zap.Int("index", evt.Index), zap.Int("total", evt.Total))
	}
	if evt.Dur > 0 {
		fields = append(fields, zap.Duration("dur", evt.Dur))
	}
	if evt.Note != "" {
		fields = append(fields, zap.String("note", evt.Note))
	}
	o.logger.Info("pipeline progress", fields...)
}
