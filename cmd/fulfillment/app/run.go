package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/masakoww/jambistore-app-sub000/configs"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/alert"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/cache"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/deliveryapi"
	httpadapter "github.com/masakoww/jambistore-app-sub000/internal/adapter/http"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/http/middleware"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/kafka"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/queue"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/notify"
	"github.com/masakoww/jambistore-app-sub000/internal/security"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type App struct {
	Router     *gin.Engine
	Store      *repo.Store
	Worker     *notify.Worker
	Payments   *usecase.Payments
	Dispatcher *usecase.Dispatcher

	cfg      configs.Config
	log      *slog.Logger
	rabbit   *amqp.Channel
	consumer *kafka.Consumer
}

// InitWithConfig wires every component. The returned cleanup closes connections.
func InitWithConfig(ctx context.Context, cfg configs.Config) (*App, func(), error) {
	log := logging.New("app")
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = store.DB().Close() })

	// redis is optional; nil interfaces switch locking and caching off
	var (
		orderCache usecase.OrderCache
		idem       usecase.IdempotencyStore
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		orderCache = cache.NewRedisCache(rdb, cfg.Cache.TTL)
		idem = cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.LockTTL, cfg.Idempotency.TTL)
	}

	var (
		ch       *amqp.Channel
		producer *queue.RabbitProducer
	)
	if cfg.Rabbit.Enabled {
		conn, err := amqp.Dial(cfg.Rabbit.URL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		pubCh, err := conn.Channel()
		if err != nil {
			return fail(err)
		}
		if producer, err = queue.NewRabbitProducer(pubCh); err != nil {
			return fail(err)
		}
		if ch, err = conn.Channel(); err != nil {
			return fail(err)
		}
	}

	hc := &http.Client{}
	reg, err := NewRegistry(cfg, hc)
	if err != nil {
		return fail(err)
	}

	var alerter usecase.AdminAlerter = alert.Noop{}
	if cfg.Alert.WebhookURL != "" {
		alerter = alert.NewWebhook(cfg.Alert.WebhookURL, &http.Client{Timeout: cfg.Alert.Timeout})
	}

	now := time.Now
	orders := store.Orders()
	ledger := usecase.NewStockLedger(store, now)
	apiDeliverer := usecase.NewRetryingAPIDeliverer(deliveryapi.NewHTTPTransport(hc), store, now,
		cfg.Delivery.ReviewDelay, usecase.WithCallTimeout(cfg.Delivery.APICallTimeout))
	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Orders:   orders,
		Products: store.Products(),
		Tx:       store,
		Ledger:   ledger,
		API:      apiDeliverer,
		Alerter:  alerter,
		Cache:    orderCache,
		Locks:    idem,
		Now:      now,
	}, usecase.DispatchConfig{
		ReviewDelay:  cfg.Delivery.ReviewDelay,
		AlertTimeout: cfg.Delivery.AlertTimeout,
	})
	payments := usecase.NewPayments(reg, orders, store, dispatcher, idem, usecase.PaymentConfig{
		Primary:   cfg.Payments.Primary,
		Backup:    cfg.Payments.Backup,
		ReturnURL: cfg.Payments.ReturnURL,
	}, now)
	admin := usecase.NewAdminActions(orders, store.Products(), store.Audit(), store, orderCache, now)
	view := usecase.NewOrderStatusView(orders, orderCache)
	checkout := usecase.NewCheckout(orders, store.Products(), idem, now)

	renderer, err := notify.NewRenderer(cfg.App.ShopName)
	if err != nil {
		return fail(err)
	}
	var mail notify.Publisher = notify.LogPublisher{Log: logging.New("mail")}
	if producer != nil {
		mail = producer
	}
	sender := notify.NewSender(renderer, mail, cfg.Notifications.RatePerSecond, cfg.Notifications.Burst)
	worker := notify.NewWorker(store.Notifications(), sender, notify.WorkerConfig{
		Interval:    cfg.Notifications.Interval,
		BatchSize:   cfg.Notifications.BatchSize,
		MaxAttempts: cfg.Notifications.MaxAttempts,
		RetryDelay:  cfg.Notifications.RetryDelay,
	}, now)

	keys, err := security.NewWebhookKeys(cfg.Webhooks)
	if err != nil {
		return fail(err)
	}
	var dispatchPub httpadapter.DispatchPublisher
	if producer != nil {
		dispatchPub = producer
	}
	router := httpadapter.NewRouter(httpadapter.Handlers{
		Orders:   httpadapter.NewOrderHandler(checkout, payments, view, cfg.HTTP.RequestTimeout),
		Webhooks: httpadapter.NewWebhookHandler(reg, payments),
		Admin:    httpadapter.NewAdminHandler(admin, dispatcher, view, dispatchPub, cfg.HTTP.RequestTimeout),
		Token: httpadapter.NewTokenHandler(httpadapter.TokenConfig{
			Secret:   cfg.Security.JWTSecret,
			Issuer:   cfg.Security.Issuer,
			Audience: cfg.Security.Audience,
			TTL:      cfg.Security.TTL,
		}, security.NewClients(cfg.Security.Clients)),
	}, middleware.NewAuthz(middleware.AuthzConfig{
		Secret:   cfg.Security.JWTSecret,
		Issuer:   cfg.Security.Issuer,
		Audience: cfg.Security.Audience,
	}), middleware.NewWebhookVerify(keys))

	a := &App{
		Router:     router,
		Store:      store,
		Worker:     worker,
		Payments:   payments,
		Dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
		rabbit:     ch,
	}

	if cfg.Kafka.Enabled {
		grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.InitialOffset)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = grp.Close() })
		h := kafka.NewPaymentEventHandler(payments)
		a.consumer = kafka.NewConsumer(grp, []string{cfg.Kafka.Topic}, h.Handle)
	}

	return a, cleanup, nil
}

// Run serves HTTP and runs background workers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.rabbit != nil {
		h := queue.NewDispatchHandler(a.Dispatcher)
		r := queue.NewRouter(a.rabbit,
			queue.WithPrefetch(a.cfg.Rabbit.Prefetch),
			queue.WithTimeout(a.cfg.Rabbit.HandlerTimeout))
		r.Register(queue.DispatchQueue, queue.JSONHandler[usecase.DispatchCmdMsg]{HandleFunc: h.HandleDispatch})
		if err := r.Start(ctx); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	if a.cfg.Notifications.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Worker.Run(ctx)
		}()
	}
	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("kafka consumer stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         a.cfg.App.HTTPAddr,
		Handler:      a.Router,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	cancel()

	sctx, scancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	wg.Wait()
	return runErr
}
