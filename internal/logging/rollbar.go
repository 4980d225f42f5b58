package logging

import (
	"github.com/rollbar/rollbar-go"
	log "github.com/sirupsen/logrus"
)

// RollbarConfig is rollbar specific configuration.
type RollbarConfig struct {
	Token       string
	Environment string
	Host        string
	CodeVersion string
}

// RollbarHook forwards error level entries to rollbar.
type RollbarHook struct {
	levels []log.Level
	report func(level string, args ...interface{})
}

var _ log.Hook = (*RollbarHook)(nil)

func NewRollbarHook(levels []log.Level) *RollbarHook {
	return &RollbarHook{levels: levels, report: rollbar.Log}
}

func (h *RollbarHook) Levels() []log.Level {
	return h.levels
}

// Fire sends the entry message, its error if any, and the remaining fields as
// custom data.
func (h *RollbarHook) Fire(e *log.Entry) error {
	custom := make(map[string]interface{}, len(e.Data))
	var err error
	for k, v := range e.Data {
		if k == log.ErrorKey {
			if er, ok := v.(error); ok {
				err = er
				continue
			}
		}
		custom[k] = v
	}
	args := []interface{}{e.Message, custom}
	if err != nil {
		args = append(args, err)
	}
	h.report(rollbarLevel(e.Level), args...)
	return nil
}

func rollbarLevel(l log.Level) string {
	switch l {
	case log.PanicLevel, log.FatalLevel:
		return rollbar.CRIT
	case log.ErrorLevel:
		return rollbar.ERR
	case log.WarnLevel:
		return rollbar.WARN
	case log.InfoLevel:
		return rollbar.INFO
	}
	return rollbar.DEBUG
}

// ConfigureRollbar adds the rollbar hook into the logger when a token is set.
func ConfigureRollbar(cfg RollbarConfig) {
	if cfg.Token == "" {
		log.Debug("skip configuring rollbar due to missing token.")
		return
	}
	rollbar.SetToken(cfg.Token)
	rollbar.SetEnvironment(cfg.Environment)
	rollbar.SetServerHost(cfg.Host)
	rollbar.SetCodeVersion(cfg.CodeVersion)

	log.AddHook(NewRollbarHook([]log.Level{
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
	}))
	log.Info("rollbar hook added successfully")
}

// Close waits for queued rollbar items to be sent.
func Close() {
	rollbar.Close()
}
