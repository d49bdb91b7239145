// settlement-gateway/cmd/gateway/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/settlement-gateway/internal/events"
	"github.com/example/settlement-gateway/internal/gateway"
	"github.com/example/settlement-gateway/internal/httpapi"
	"github.com/example/settlement-gateway/internal/processors"
	"github.com/example/settlement-gateway/internal/registry"
	"github.com/example/settlement-gateway/internal/roles"
	"github.com/example/settlement-gateway/internal/store"
)

func main() {
	ctx := context.Background()

	kv, closeKV, err := openStore(ctx)
	if err != nil {
		log.Fatalf("[gateway] open store: %v", err)
	}
	defer closeKV()
	db := store.NewDB(kv)

	pub := openPublisher()
	defer pub.Close()

	mgr := roles.NewManager()
	if admin := os.Getenv("ADMIN_ACCOUNT"); admin != "" {
		for _, role := range []string{
			roles.ProcessorManager, roles.ProcessorAdmin,
			roles.DiscountManager, roles.PriceFeeder,
		} {
			mgr.GrantSystem(role, admin)
		}
		log.Printf("[gateway] bootstrap admin: %s", admin)
	}

	fee := processors.NewFee(db)
	discount := processors.NewDiscount(db)
	oracle := processors.NewOracle(db)
	filter := processors.NewTokenFilter(db)
	for _, p := range []interface{ AttachRoleManager(*roles.Manager) }{fee, discount, oracle, filter} {
		p.AttachRoleManager(mgr)
	}
	for _, p := range []interface{ AttachPublisher(events.Publisher) }{fee, discount, oracle, filter} {
		p.AttachPublisher(pub)
	}

	reg := registry.New()
	for _, p := range []processors.Processor{filter, discount, fee, oracle} {
		if err := reg.Register(p); err != nil {
			log.Fatalf("[gateway] register %s: %v", p.Name(), err)
		}
	}

	gw := gateway.New(db, reg, mgr, pub)

	handler := httpapi.Router(httpapi.Deps{
		Gateway:  gw,
		Fee:      fee,
		Discount: discount,
		Oracle:   oracle,
		Filter:   filter,
	})

	addr := getenv("HTTP_ADDR", ":8080")
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("[gateway] shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("[gateway] HTTP server Shutdown: %v", err)
		}
	}()

	log.Printf("[gateway] listening at %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("[gateway] server error: %v", err)
	}
}

func openStore(ctx context.Context) (store.KV, func(), error) {
	switch backend := getenv("STORE_BACKEND", "memory"); backend {
	case "redis":
		r := store.NewRedis(getenv("REDIS_ADDR", "localhost:6379"))
		return r, func() { _ = r.Close() }, nil
	case "postgres":
		p, err := store.NewPostgres(ctx, os.Getenv("POSTGRES_DSN"))
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func openPublisher() events.Publisher {
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		return events.LogPublisher{}
	}
	topic := getenv("KAFKA_EVENTS_TOPIC", "settlement.events")
	log.Printf("[gateway] publishing events to %s (%s)", topic, brokers)
	return events.NewBus(strings.Split(brokers, ","), topic)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
