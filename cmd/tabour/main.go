package main

import (
	"context"
	"errors"
	"expvar"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"tabour/internal/config"
	"tabour/internal/estimate"
	"tabour/internal/httpapi"
	"tabour/internal/hub"
	"tabour/internal/models"
	"tabour/internal/notify"
	"tabour/internal/store"
	"tabour/internal/store/memory"
	"tabour/internal/store/postgres"
	"tabour/internal/telemetry"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("tabour")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	h := hub.New()
	dispatcher := notify.NewDispatcher(notify.NewMsegat(), notify.NewKarzoun())

	st, closeStore, err := buildStore(cfg, dispatcher, h)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}
	defer closeStore()

	seedAdmin(st, cfg)

	var provider estimate.Provider
	if cfg.GeminiAPIKey != "" {
		gemini, err := estimate.NewGemini(context.Background(), cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("gemini init error, falling back to heuristic: %v", err)
		} else {
			provider = gemini
		}
	}
	estimator := estimate.New(provider)

	handler := httpapi.NewHandler(st, httpapi.Options{Estimator: estimator})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:     cfg.RateLimitPerMinute,
		IPBurst:         cfg.RateLimitBurst,
		MobilePerMinute: cfg.MobileRateLimitPerMinute,
		MobileBurst:     cfg.MobileRateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", expvar.Handler())
	mux.Handle("/realtime/", realtimeHandler(h))
	mux.Handle("/", handler.Routes())

	chain := httpapi.AuthMiddleware(st, mux)
	chain = limiter.Middleware(chain)
	chain = httpapi.LoggingMiddleware(chain)
	otelHandler := otelhttp.NewHandler(chain, "tabour")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("tabour listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	go runAutoDepart(st, cfg.AutoDepartInterval, cfg.AutoDepartThreshold)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func buildStore(cfg config.Config, notifier store.Notifier, publisher store.Publisher) (store.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(context.Background(), cfg.DatabaseURL, postgres.Options{
			Notifier:  notifier,
			Publisher: publisher,
		})
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}

	log.Printf("DB_DSN not set, using in-memory store")
	mem := memory.New(memory.Options{
		Notifier:  notifier,
		Publisher: publisher,
	})
	if _, err := mem.AddBranch(context.Background(), models.Branch{
		Name:              "الفرع الرئيسي",
		IsWaitlistEnabled: true,
	}); err != nil {
		return nil, nil, err
	}
	return mem, func() {}, nil
}

func seedAdmin(st store.Store, cfg config.Config) {
	if cfg.SeedAdminMobile == "" || cfg.SeedAdminPassword == "" {
		return
	}
	_, err := st.AddUser(context.Background(), models.User{
		Name:   cfg.SeedAdminName,
		Mobile: cfg.SeedAdminMobile,
		Role:   models.RoleAdmin,
	}, cfg.SeedAdminPassword)
	if err != nil && !errors.Is(err, store.ErrDuplicateUser) {
		log.Printf("seed admin error: %v", err)
	}
}

// realtimeHandler accepts dashboard and waiting-page clients. The feed
// is read-only and branch-scoped, so connections need no session.
func realtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{BranchID: parsed.BranchID})
		}
	})
}

func runAutoDepart(st store.Store, interval, threshold time.Duration) {
	if interval <= 0 || threshold <= 0 {
		return
	}
	var running int32
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if !atomic.CompareAndSwapInt32(&running, 0, 1) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		departed, err := st.AutoDepart(ctx, threshold)
		cancel()
		if err != nil {
			log.Printf("auto depart error: %v", err)
		} else if departed > 0 {
			log.Printf("auto depart completed=%d", departed)
		}
		atomic.StoreInt32(&running, 0)
	}
}
