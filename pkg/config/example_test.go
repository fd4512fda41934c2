package config_test

import (
	"fmt"

	"github.com/wonny/aegis/kisrt/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Environment: %s\n", cfg.Env)
	fmt.Printf("Virtual: %v\n", cfg.KIS.IsVirtual)
	fmt.Printf("Max subscriptions: %d\n", cfg.Realtime.MaxSubscriptions)
	fmt.Printf("Reconnect interval: %s\n", cfg.Realtime.ReconnectInterval)
}
