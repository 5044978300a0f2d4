// Package app wires the venue feeds, the spread book, the decision engine
// and the order executor into one serialized trading loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stark-arb-bot/internal/alerts"
	"stark-arb-bot/internal/config"
	"stark-arb-bot/internal/exec"
	"stark-arb-bot/internal/ledger"
	"stark-arb-bot/internal/market"
	"stark-arb-bot/internal/metrics"
	"stark-arb-bot/internal/sign"
	"stark-arb-bot/internal/state"
	"stark-arb-bot/internal/state/sqlite"
	"stark-arb-bot/internal/strategy"
	"stark-arb-bot/internal/timescale"
	"stark-arb-bot/internal/venue"
	"stark-arb-bot/internal/venue/edgex"
	"stark-arb-bot/internal/venue/paradex"
)

const quoteBuffer = 256

type App struct {
	cfg *config.Config
	log *zap.Logger

	book     *market.Book
	led      *ledger.Ledger
	engine   *strategy.Engine
	executor *exec.Executor
	store    state.Store
	metrics  *metrics.Metrics
	promSrv  *http.Server
	tsdb     *timescale.Writer
	telegram *alerts.Telegram

	edgexClient   *edgex.Client
	paradexClient *paradex.Client
	edgexFeed     *edgex.Feed
	paradexFeed   *paradex.Feed

	quotes chan market.Quote
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	edgexSigner, err := sign.New(sign.Key{
		Venue:         venue.Edgex,
		PrivateKeyHex: os.Getenv("EDGEX_PRIVATE_KEY"),
		Account:       os.Getenv("EDGEX_ACCOUNT_ID"),
		PublicKey:     os.Getenv("EDGEX_PUBLIC_KEY"),
		Deterministic: true,
	})
	if err != nil {
		return nil, fmt.Errorf("edgex signer: %w", err)
	}
	paradexSigner, err := sign.New(sign.Key{
		Venue:         venue.Paradex,
		PrivateKeyHex: os.Getenv("PARADEX_PRIVATE_KEY"),
		Account:       os.Getenv("PARADEX_ACCOUNT_ADDRESS"),
		PublicKey:     os.Getenv("PARADEX_PUBLIC_KEY"),
		Deterministic: true,
	})
	if err != nil {
		return nil, fmt.Errorf("paradex signer: %w", err)
	}

	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	led := ledger.New(ledger.Limits{
		MaxAddCount: cfg.Risk.MaxAddCount,
		MaxSize:     cfg.Risk.MaxPositionSize,
	})
	engine := strategy.NewEngine(
		strategy.ThresholdsFromConfig(cfg.Strategy, cfg.Risk),
		led, venue.Edgex, venue.Paradex, log,
	)

	edgexClient := edgex.NewClient(cfg.Edgex.RESTBaseURL, cfg.Edgex.Market, edgexSigner, cfg.Edgex.Timeout, log)
	paradexClient := paradex.NewClient(cfg.Paradex.RESTBaseURL, cfg.Paradex.Market, paradexSigner, cfg.Paradex.Timeout, log)

	executor := exec.New(map[venue.ID]exec.Client{
		venue.Edgex:   edgexClient,
		venue.Paradex: paradexClient,
	}, store, cfg.Strategy.PendingTimeout, log)

	tsdb, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}

	m := metrics.NewNoop()
	var promSrv *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		promSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}

	a := &App{
		cfg:           cfg,
		log:           log,
		book:          market.NewBook(venue.Edgex, venue.Paradex, cfg.Strategy.QuoteStaleAfter),
		led:           led,
		engine:        engine,
		executor:      executor,
		store:         store,
		metrics:       m,
		promSrv:       promSrv,
		tsdb:          tsdb,
		telegram:      alerts.NewTelegram(cfg.Telegram, log),
		edgexClient:   edgexClient,
		paradexClient: paradexClient,
		quotes:        make(chan market.Quote, quoteBuffer),
	}
	a.edgexFeed = edgex.NewFeed(cfg.Edgex.WSURL, cfg.Edgex.Market,
		cfg.Edgex.ReconnectDelay, cfg.Edgex.PingInterval, a.publishQuote, log)
	a.paradexFeed = paradex.NewFeed(cfg.Paradex.WSURL, cfg.Paradex.Market,
		cfg.Paradex.ReconnectDelay, cfg.Paradex.PingInterval, a.publishQuote, log)
	return a, nil
}

func (a *App) publishQuote(q market.Quote) {
	select {
	case a.quotes <- q:
	default:
		// The loop is behind; dropping the oldest pending quote keeps the
		// freshest one flowing.
		select {
		case <-a.quotes:
		default:
		}
		select {
		case a.quotes <- q:
		default:
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	if err := a.reconcileStartup(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}
	a.tsdb.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.edgexFeed.Start(ctx) })
	g.Go(func() error { return a.paradexFeed.Start(ctx) })
	if a.promSrv != nil {
		g.Go(func() error {
			err := a.promSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return a.promSrv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error { return a.loop(ctx) })

	err := g.Wait()
	_ = a.tsdb.Close()
	_ = a.store.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// loop serializes everything: quote intake, spread derivation, engine
// evaluation and order execution happen on this one goroutine, so the
// engine never sees concurrent decisions.
func (a *App) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q := <-a.quotes:
			a.metrics.QuotesReceived.Inc()
			if !a.book.Update(q) {
				continue
			}
			a.step(ctx, time.Now().UTC())
		}
	}
}

func (a *App) step(ctx context.Context, now time.Time) {
	sp, ok := a.book.Spread(now)
	a.metrics.SpreadEvaluations.Inc()
	if ok {
		a.metrics.CurrentSpread.Set(sp.Value)
		a.recordSpread(now, sp)
	}
	intent, fired := a.engine.Evaluate(now, sp, ok)
	if !fired {
		return
	}
	switch intent.Type {
	case strategy.IntentOpen:
		a.metrics.IntentsOpen.Inc()
	case strategy.IntentAdd:
		a.metrics.IntentsAdd.Inc()
	case strategy.IntentClose:
		a.metrics.IntentsClose.Inc()
	}
	a.log.Info("intent emitted",
		zap.String("type", string(intent.Type)),
		zap.String("short", string(intent.ShortVenue)),
		zap.String("long", string(intent.LongVenue)),
		zap.Float64("size", intent.Size),
		zap.Float64("spread", intent.Spread),
		zap.String("reason", intent.Reason),
	)
	a.execute(ctx, now, intent)
	a.saveSnapshot(ctx)
}

// execute places both legs of the pair. The short leg goes first; if the
// long leg then fails, the short leg is flattened best-effort before the
// engine reverts, so the book never stays one-sided.
func (a *App) execute(ctx context.Context, now time.Time, intent strategy.Intent) {
	reduceOnly := intent.Type == strategy.IntentClose
	tag := fmt.Sprintf("%s-%d", intent.Type, now.UnixNano())

	shortFill, err := a.executor.Submit(ctx, venue.Order{
		Venue:         intent.ShortVenue,
		Market:        a.marketFor(intent.ShortVenue),
		IsBuy:         reduceOnly,
		Size:          intent.Size,
		LimitPrice:    a.legLimit(intent.ShortVenue, reduceOnly),
		ReduceOnly:    reduceOnly,
		ClientOrderID: tag + "-s",
	})
	if err != nil {
		a.onSubmitError(ctx, intent, err)
		return
	}
	a.metrics.OrdersPlaced.Inc()

	longFill, err := a.executor.Submit(ctx, venue.Order{
		Venue:         intent.LongVenue,
		Market:        a.marketFor(intent.LongVenue),
		IsBuy:         !reduceOnly,
		Size:          shortFill.Size,
		LimitPrice:    a.legLimit(intent.LongVenue, !reduceOnly),
		ReduceOnly:    reduceOnly,
		ClientOrderID: tag + "-l",
	})
	if err != nil {
		a.unwindLeg(ctx, intent.ShortVenue, shortFill, reduceOnly, tag)
		a.onSubmitError(ctx, intent, err)
		return
	}
	a.metrics.OrdersPlaced.Inc()

	size := shortFill.Size
	if longFill.Size < size {
		size = longFill.Size
	}
	fill := ledger.Fill{
		Size:       size,
		ShortPrice: shortFill.Price,
		LongPrice:  longFill.Price,
		Time:       now,
	}
	st, realized, err := a.engine.OnFillConfirmed(now, fill)
	if err != nil && !errors.Is(err, strategy.ErrHalted) {
		a.log.Error("fill confirmation rejected", zap.Error(err))
		return
	}
	a.recordFills(now, intent, shortFill, longFill, realized)
	a.metrics.DailyLoss.Set(a.engine.DailyLoss())
	if errors.Is(err, strategy.ErrHalted) {
		a.metrics.Halts.Inc()
		a.alert(ctx, fmt.Sprintf("trading halted: daily loss %.2f reached the limit", a.engine.DailyLoss()))
	}
	a.log.Info("fill confirmed",
		zap.String("state", string(st)),
		zap.Float64("size", fill.Size),
		zap.Float64("entry_spread", fill.SpreadPrice()),
		zap.Float64("realized", realized),
	)
}

func (a *App) onSubmitError(ctx context.Context, intent strategy.Intent, err error) {
	a.metrics.OrdersFailed.Inc()
	if errors.Is(err, exec.ErrSubmissionTimeout) {
		a.metrics.SubmissionTimeouts.Inc()
		a.alert(ctx, fmt.Sprintf("%s submission timed out and reconciliation could not resolve it, verify venue exposure", intent.Type))
	}
	a.engine.OnSubmissionFailed(time.Now().UTC(), err)
	a.log.Warn("intent execution failed", zap.String("type", string(intent.Type)), zap.Error(err))
}

// unwindLeg reverses an already-filled first leg after the second leg
// failed. Failure here leaves real one-sided exposure, which is worth an
// operator page.
func (a *App) unwindLeg(ctx context.Context, v venue.ID, fill venue.FillResult, wasBuy bool, tag string) {
	_, err := a.executor.Submit(ctx, venue.Order{
		Venue:         v,
		Market:        a.marketFor(v),
		IsBuy:         !wasBuy,
		Size:          fill.Size,
		LimitPrice:    a.legLimit(v, !wasBuy),
		ReduceOnly:    true,
		ClientOrderID: tag + "-unwind",
	})
	if err != nil {
		a.log.Error("failed to unwind one-sided leg", zap.String("venue", string(v)), zap.Error(err))
		a.alert(ctx, fmt.Sprintf("one-sided exposure on %s after failed pair execution, manual intervention needed", v))
	}
}

// legLimit prices an IOC order to cross the book: sells hit the bid, buys
// lift the ask.
func (a *App) legLimit(v venue.ID, isBuy bool) float64 {
	q, ok := a.book.Latest(v)
	if !ok {
		return 0
	}
	if isBuy {
		return q.Ask
	}
	return q.Bid
}

func (a *App) marketFor(v venue.ID) string {
	if v == venue.Edgex {
		return a.cfg.Edgex.Market
	}
	return a.cfg.Paradex.Market
}

func (a *App) recordSpread(now time.Time, sp market.Spread) {
	eq, okE := a.book.Latest(venue.Edgex)
	pq, okP := a.book.Latest(venue.Paradex)
	if !okE || !okP {
		return
	}
	a.tsdb.EnqueueSpread(timescale.SpreadTick{
		Time:       now,
		EdgexMid:   eq.Mid(),
		ParadexMid: pq.Mid(),
		Spread:     sp.Value,
	})
}

func (a *App) recordFills(now time.Time, intent strategy.Intent, shortFill, longFill venue.FillResult, realized float64) {
	a.tsdb.EnqueueFill(timescale.TradeFill{
		Time: now, Venue: string(intent.ShortVenue), Intent: string(intent.Type),
		Size: shortFill.Size, Price: shortFill.Price, Realized: realized,
	})
	a.tsdb.EnqueueFill(timescale.TradeFill{
		Time: now, Venue: string(intent.LongVenue), Intent: string(intent.Type),
		Size: longFill.Size, Price: longFill.Price,
	})
}

func (a *App) saveSnapshot(ctx context.Context) {
	if err := state.SaveEngineSnapshot(ctx, a.store, a.engine.Snapshot()); err != nil {
		a.log.Warn("failed to persist engine snapshot", zap.Error(err))
	}
}

func (a *App) alert(ctx context.Context, message string) {
	if err := a.telegram.Send(ctx, message); err != nil {
		a.log.Warn("telegram alert failed", zap.Error(err))
	}
}
