package engine

import "log/slog"

// NewFactory validates the model configuration once and returns a Factory
// the transcriber invokes per worker. UseStub selects the deterministic stub
// backend, used by tests and the --stub-engine ops escape hatch.
func NewFactory(cfg ModelConfig, useStub bool, logger *slog.Logger) (Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if useStub {
		logger.Warn("stub engine forced by configuration")
		return func() (Engine, error) {
			return NewStubEngine(logger, cfg.ModelSize), nil
		}, nil
	}

	return func() (Engine, error) {
		return NewFasterWhisperEngine(cfg, logger)
	}, nil
}
