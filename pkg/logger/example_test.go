package logger_test

import (
	"errors"
	"os"

	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Example_basic demonstrates basic logger usage
func Example_basic() {
	cfg := &config.Config{
		Env:       "development",
		LogLevel:  "info",
		LogFormat: "console",
	}

	log := logger.New(cfg)

	log.Debug("This won't appear (level is info)")
	log.Info("Realtime client started")
	log.Warnf("Reconnect attempt in %s", "5s")
}

// Example_withFields demonstrates structured logging with fields
func Example_withFields() {
	log := logger.NewWithWriter(os.Stderr, "info").Component("realtime")

	log.WithFields(map[string]interface{}{
		"tr_id":  "H0STCNT0",
		"tr_key": "005930",
	}).Info("Subscribe acknowledged")

	log.WithError(errors.New("missing key")).
		WithField("tr_id", "H0STCNI0").
		Warn("Dropped encrypted frame")
}
