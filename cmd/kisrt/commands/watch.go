package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis/kisrt/internal/api"
	"github.com/wonny/aegis/kisrt/internal/api/handlers"
	"github.com/wonny/aegis/kisrt/internal/event"
	"github.com/wonny/aegis/kisrt/internal/external/kis"
	"github.com/wonny/aegis/kisrt/internal/journal"
	"github.com/wonny/aegis/kisrt/internal/quote"
	"github.com/wonny/aegis/kisrt/internal/realtime"
	"github.com/wonny/aegis/kisrt/internal/scope"
	"github.com/wonny/aegis/kisrt/internal/session"
	"github.com/wonny/aegis/kisrt/pkg/config"
	"github.com/wonny/aegis/kisrt/pkg/database"
	"github.com/wonny/aegis/kisrt/pkg/httputil"
	"github.com/wonny/aegis/kisrt/pkg/logger"
	"github.com/wonny/aegis/kisrt/pkg/redis"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "실시간 시세/체결통보 구독",
	Long: `KIS WebSocket에 연결해 실시간 데이터를 출력합니다.

이 명령어는:
- 종목별 체결가(및 호가) 구독
- 계좌 체결통보 구독 (모의투자도 실전 서버 사용)
- 수신 이벤트를 PostgreSQL에 적재 (--journal)
- 상태 API 제공 (--status)
- 장 시작/종료 스케줄에 따라 연결/해제 (--schedule)

Example:
  go run ./cmd/kisrt watch --symbol 005930 --orderbook
  go run ./cmd/kisrt watch --symbol NASD:AAPL --execution --status --port 8090`,
	RunE: runWatch,
}

var (
	watchSymbols   []string
	watchOrderbook bool
	watchExecution bool
	watchJournal   bool
	watchStatus    bool
	watchSchedule  bool
	watchPort      string
	watchQuoteTTL  time.Duration
	watchConnect   time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVar(&watchSymbols, "symbol", nil, "종목 (005930 또는 NASD:AAPL), 반복 가능")
	watchCmd.Flags().BoolVar(&watchOrderbook, "orderbook", false, "호가도 구독")
	watchCmd.Flags().BoolVar(&watchExecution, "execution", false, "계좌 체결통보 구독 (KIS_HTS_ID 필요)")
	watchCmd.Flags().BoolVar(&watchJournal, "journal", false, "이벤트 PostgreSQL 적재 (DATABASE_URL 필요)")
	watchCmd.Flags().BoolVar(&watchStatus, "status", false, "상태 API 서버 시작")
	watchCmd.Flags().BoolVar(&watchSchedule, "schedule", false, "장 운영 스케줄에 맞춰 연결/해제")
	watchCmd.Flags().StringVar(&watchPort, "port", "", "상태 API 포트 (기본 STATUS_PORT)")
	watchCmd.Flags().DurationVar(&watchQuoteTTL, "quote-ttl", time.Minute, "시세 캐시 stale 기준")
	watchCmd.Flags().DurationVar(&watchConnect, "connect-timeout", 15*time.Second, "최초 연결 대기 시간")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(watchSymbols) == 0 && !watchExecution {
		return fmt.Errorf("nothing to watch: pass --symbol or --execution")
	}

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if virtual {
		cfg.KIS.IsVirtual = true
	}
	if watchPort != "" {
		cfg.Status.Port = watchPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Approval keys (Redis cache optional)
	var approvalCache *redis.Cache
	rc, err := redis.New(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, approval keys cached in memory only")
	} else if rc.Enabled() {
		defer rc.Close()
		approvalCache = redis.NewCache(rc, "kisrt")
	}

	httpClient := httputil.New(log).WithRateLimit(httputil.KISRateLimit)
	issuer := kis.NewApprovalIssuer(cfg.KIS, httpClient, approvalCache, log)

	// 4. Realtime client
	client := realtime.NewClient(cfg.Realtime, cfg.KIS.IsVirtual, issuer, log)
	defer client.Disconnect()

	client.Subscribed().On(func(_ any, args realtime.SubscriptionStateArgs) {
		log.WithField("tr", args.TR.String()).Info("Subscribed")
	})
	client.Unsubscribed().On(func(_ any, args realtime.SubscriptionStateArgs) {
		log.WithField("tr", args.TR.String()).Info("Unsubscribed")
	})

	quotes := quote.NewCache(watchQuoteTTL, log)
	quotes.Attach(client)

	// 5. Journal
	if watchJournal {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		j := journal.New(db.Pool, log)
		if err := j.EnsureSchema(ctx); err != nil {
			return err
		}
		j.Start(ctx)
		defer j.Stop()
		j.Attach(client)
	}

	// 6. Subscriptions
	out := cmd.OutOrStdout()
	printEvent := func(_ any, args realtime.SubscriptionEventArgs) {
		fmt.Fprintln(out, formatEvent(args.Response))
	}

	var tickets []event.Releaser
	defer func() {
		for _, t := range tickets {
			t.Unsubscribe()
		}
	}()

	for _, arg := range watchSymbols {
		market, symbol, err := parseSymbol(arg)
		if err != nil {
			return err
		}
		stock := scope.NewStock(client, symbol, market)

		events := []string{scope.EventPrice}
		if watchOrderbook {
			events = append(events, scope.EventOrderbook)
		}
		for _, name := range events {
			t, err := stock.On(name, printEvent)
			if err != nil {
				return fmt.Errorf("subscribe %s %s: %w", arg, name, err)
			}
			tickets = append(tickets, t)
		}
	}

	if watchExecution {
		if cfg.KIS.HtsID == "" {
			return fmt.Errorf("KIS_HTS_ID is required for --execution")
		}
		account := scope.NewAccount(client, cfg.KIS.HtsID, cfg.KIS.AccountNo)
		t, err := account.On(scope.EventExecution, printEvent)
		if err != nil {
			return fmt.Errorf("subscribe execution notices: %w", err)
		}
		tickets = append(tickets, t)
	}

	// 7. Session schedule or connect now
	var schedule handlers.ScheduleSource
	if watchSchedule {
		s, err := session.NewFromConfig(cfg.Session, log)
		if err != nil {
			return err
		}
		if err := session.Register(s, cfg.Session, client); err != nil {
			return err
		}
		if err := s.AddJob(session.NewJob("quote-clean", "0 */5 * * * *", func(context.Context) error {
			quotes.CleanStale()
			return nil
		})); err != nil {
			return err
		}
		// 티켓 등록이 이미 연결을 시작했으므로 장외 시간이면 끊고 session-open에서 복원
		open, err := session.Align(cfg.Session, client, time.Now())
		if err != nil {
			return err
		}
		log.WithField("in_session", open).Info("Session window checked")
		s.Start()
		defer s.Stop()
		schedule = s
	} else {
		connectCtx, cancel := context.WithTimeout(ctx, watchConnect)
		err := client.EnsureConnected(connectCtx)
		cancel()
		if err != nil {
			// 재연결 루프가 계속 시도함
			log.WithError(err).Warn("Realtime connection not ready yet")
		}
	}

	// 8. Status server
	if watchStatus {
		router := api.NewRouter(handlers.NewStatusHandler(client, quotes, schedule, log), log)
		server := api.New(cfg.Status, log, router)
		go func() {
			if err := server.Start(); err != nil {
				log.WithError(err).Error("Status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Warn("Status server shutdown failed")
			}
		}()
	}

	mode := "real"
	if cfg.KIS.IsVirtual {
		mode = "virtual"
	}
	printHeader(out, "KIS Realtime Watch",
		fmt.Sprintf("Domain    : %s", mode),
		fmt.Sprintf("Symbols   : %v", watchSymbols),
		fmt.Sprintf("Execution : %v", watchExecution),
		fmt.Sprintf("Journal   : %v", watchJournal),
		fmt.Sprintf("Schedule  : %v", watchSchedule),
	)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	<-ctx.Done()
	log.Info("Shutting down")
	return nil
}
