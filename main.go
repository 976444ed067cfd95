package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"boardsync/api"
	"boardsync/identity"
	"boardsync/storage"
	"boardsync/store"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTableName := os.Getenv("TASKS_TABLE")
	categoriesTableName := os.Getenv("CATEGORIES_TABLE")
	if connStr == "" || tasksTableName == "" || categoriesTableName == "" {
		log.Fatal("missing storage config")
	}
	tables, err := storage.NewTables(connStr, tasksTableName, categoriesTableName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var remote storage.Remote = tables
	var redisClient *redis.Client
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisClient = redis.NewClient(redisOptions(redisConn))
		cacheTTL := 5 * time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		remote = storage.NewCache(tables, redisClient, cacheTTL)
	}

	var deduper api.Deduper
	if redisClient != nil {
		dedupeTTL := 24 * time.Hour
		if v := os.Getenv("DEDUPER_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid DEDUPER_TTL: %v", err)
			}
			dedupeTTL = d
		}
		deduper = api.NewRedisDeduper(redisClient, dedupeTTL)
	}

	var sinkOpt store.Option
	if queueName := os.Getenv("EVENTS_QUEUE"); queueName != "" {
		publisher, err := storage.NewQueuePublisher(connStr, queueName)
		if err != nil {
			log.Fatalf("events queue: %v", err)
		}
		sinkOpt = store.WithEventSink(publisher)
	}

	verifier := newVerifier()
	logger := log.New()

	sessions := api.NewSessionManager(func(user identity.User) *store.Store {
		opts := []store.Option{store.WithLogger(logger)}
		if sinkOpt != nil {
			opts = append(opts, sinkOpt)
		}
		return store.New(remote, identity.NewStatic(user.ID), opts...)
	})
	defer sessions.Shutdown()

	otel.SetTracerProvider(sdktrace.NewTracerProvider())

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))

	api.Register(e, sessions, api.NewTokenAuth(verifier), deduper, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// newVerifier builds the JWT verifier from env config. Test mode skips the
// JWKS fetch entirely.
func newVerifier() *identity.Verifier {
	if os.Getenv("AUTH_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != "" {
		return identity.NewVerifier(nil, "", "")
	}
	audience := os.Getenv("AUTH_AUDIENCE")
	domain := os.Getenv("AUTH_DOMAIN")
	if audience == "" || domain == "" {
		log.Fatal("missing auth config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return identity.NewVerifier(jwks, audience, "https://"+domain+"/")
}

// redisOptions accepts either a redis URL or the comma-separated
// "host:port,password=...,ssl=true" form some managed caches hand out.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
