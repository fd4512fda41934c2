package httputil_test

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis/kisrt/pkg/httputil"
	"github.com/wonny/aegis/kisrt/pkg/logger"
)

// Example_kis shows the client configured the way the approval issuer uses it
func Example_kis() {
	client := httputil.New(logger.Nop()).
		WithRetry(3, 500*time.Millisecond).
		WithRateLimit(httputil.KISRateLimit)

	resp, err := client.PostJSON(context.Background(), "https://openapi.koreainvestment.com:9443/oauth2/Approval", map[string]string{
		"grant_type": "client_credentials",
		"appkey":     "APP_KEY",
		"secretkey":  "APP_SECRET",
	})
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		return
	}
	defer resp.Body.Close()

	fmt.Printf("Status: %d\n", resp.StatusCode)
}
