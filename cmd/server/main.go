// Command server runs the Request Orchestrator behind the Protocol Gateway
// (§4.4), alongside an ops-only HTTP surface (§4.5). Grounded on the
// teacher's cmd/server/main.go wiring idiom: resolve config, build the
// storage/geo/event-sink stack, then start every listener and let signals
// drive shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JawadKotaichh/aubus/internal/adminfeed"
	"github.com/JawadKotaichh/aubus/internal/auth"
	"github.com/JawadKotaichh/aubus/internal/config"
	"github.com/JawadKotaichh/aubus/internal/domain"
	"github.com/JawadKotaichh/aubus/internal/eventbus"
	"github.com/JawadKotaichh/aubus/internal/gateway"
	"github.com/JawadKotaichh/aubus/internal/geo"
	"github.com/JawadKotaichh/aubus/internal/httpapi"
	"github.com/JawadKotaichh/aubus/internal/mapadapter"
	"github.com/JawadKotaichh/aubus/internal/orchestrator"
	"github.com/JawadKotaichh/aubus/internal/schedule"
	"github.com/JawadKotaichh/aubus/internal/selector"
	"github.com/JawadKotaichh/aubus/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(2)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := storage.DefaultPool(connectCtx, cfg.DBPath)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to store: %w", err)
	}
	defer pool.Close()

	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = storage.EnsureSchema(schemaCtx, pool)
	cancel()
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	pg := storage.NewPostgres(pool)
	identityDB := storage.NewIdentityStore(pool)
	events := storage.NewEventStore(pool)

	authMem := auth.NewInMemoryStore()
	seedIdentities(ctx, identityDB, authMem)

	geoIdx := resolveGeoIndex(ctx, cfg.RedisURL)

	var client *http.Client
	maps := mapadapter.NewHTTPAdapter(cfg.MapEndpoint, client)

	sel := selector.New(pg, schedule.NewLookup(pg), maps, cfg.FanoutWidth)

	sinks := []orchestrator.EventSink{events}
	feed := adminfeed.NewHub()
	go feed.Run()
	sinks = append(sinks, feed)

	if cfg.AMQPURL != "" {
		bus, err := eventbus.Dial(cfg.AMQPURL)
		if err != nil {
			log.Printf("event bus unavailable, continuing without it: %v", err)
		} else {
			defer bus.Close()
			sinks = append(sinks, bus)
		}
	}

	orch := orchestrator.New(pg, sel, maps, orchestrator.NewMultiSink(sinks...))
	orch.FanoutK = cfg.FanoutWidth
	orch.Pending = cfg.PendingTimeout()
	orch.Confirm = cfg.ConfirmTimeout()

	sessions := gateway.NewSessionResolver(authMem, identityDB)
	locations := &locationUpdater{pg: pg, geo: geoIdx}
	gw := gateway.New(orch, sessions, locations)
	gwServer := gateway.NewServer(fmt.Sprintf(":%d", cfg.ListenPort), gw)

	httpServer := &http.Server{
		Addr:              cfg.AdminHTTPAddr,
		Handler:           httpapi.NewRouter(pg, feed),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go orch.RunSweeper(ctx, cfg.SweepInterval())

	errCh := make(chan error, 2)
	go func() { errCh <- gwServer.Serve(ctx) }()
	go func() {
		log.Printf("ops HTTP listening on %s", cfg.AdminHTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// resolveGeoIndex picks the Redis-backed proximity index when a Redis
// endpoint is configured, falling back to the in-process haversine scan
// otherwise. The index is kept current from heartbeats only; the §4.2
// selector does not read it.
func resolveGeoIndex(ctx context.Context, redisURL string) geo.Index {
	if redisURL == "" {
		return geo.NewInMemory()
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("redis URL parse error, geo fallback to in-memory: %v", err)
		return geo.NewInMemory()
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("redis unreachable, geo fallback to in-memory: %v", err)
		return geo.NewInMemory()
	}
	log.Printf("using Redis geo index")
	return geo.NewRedisIndex(client)
}

func seedIdentities(ctx context.Context, db *storage.IdentityStore, mem *auth.InMemoryStore) {
	seedCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	all, err := db.All(seedCtx)
	if err != nil {
		log.Printf("failed to preload identities: %v", err)
		return
	}
	for _, ident := range all {
		mem.Seed(ident)
	}
}

// locationUpdater fans a driver heartbeat out to both the relational store
// (the record of truth for OnlineDrivers) and the proximity index, which no
// selection path reads.
type locationUpdater struct {
	pg  *storage.Postgres
	geo geo.Index
}

func (l *locationUpdater) SetDriverLocation(ctx context.Context, driverID string, lat, lng float64, state domain.LocationState, online bool) error {
	if err := l.pg.SetDriverLocation(ctx, driverID, lat, lng, state, online); err != nil {
		return err
	}
	if !online {
		return l.geo.Remove(ctx, driverID)
	}
	return l.geo.Upsert(ctx, driverID, lat, lng)
}
