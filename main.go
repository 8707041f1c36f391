package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"leaddesk-api/api"
	"leaddesk-api/blob"
	"leaddesk-api/extract"
	"leaddesk-api/identity"
	"leaddesk-api/linking"
	"leaddesk-api/storage"
	"leaddesk-api/visibility"
	"leaddesk-api/watch"
)

const defaultGraceDelay = 5 * time.Second

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tables := storage.Tables{
		Users:    os.Getenv("USERS_TABLE"),
		Tasks:    os.Getenv("TASKS_TABLE"),
		Comments: os.Getenv("COMMENTS_TABLE"),
		Leads:    os.Getenv("LEADS_TABLE"),
		Links:    os.Getenv("LINKS_TABLE"),
	}
	reconcileQueue := os.Getenv("RECONCILE_QUEUE")
	if connStr == "" || tables.Users == "" || tables.Tasks == "" || tables.Comments == "" ||
		tables.Leads == "" || tables.Links == "" || reconcileQueue == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, tables, reconcileQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	cacheTTL := 5 * time.Minute
	if v := os.Getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid CACHE_TTL: %v", err)
		}
		cacheTTL = d
	}
	cached := storage.NewCache(store, rc, cacheTTL)

	updatesChannel := os.Getenv("UPDATES_CHANNEL")
	if updatesChannel == "" {
		updatesChannel = "entity-updates"
	}
	watcher := watch.NewWatcher(rc, updatesChannel)
	watchCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()
	go watcher.Run(watchCtx, logger)

	graceDelay := defaultGraceDelay
	if v := os.Getenv("GRACE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			log.Fatalf("invalid GRACE_DELAY: %v", err)
		}
		graceDelay = d
	}
	resolver := identity.NewResolver(cached, watcher, graceDelay, logger)
	linker := linking.NewService(cached, cached, watcher, logger)
	rule := visibility.NewRule(cached)

	// Repair decisions read the raw store; a stale cached account must not
	// steer them.
	reconciler := linking.NewReconciler(store, store, cached, watcher, logger)
	go reconciler.Run(watchCtx)

	testMode := os.Getenv("AUTH_TEST_MODE") == "1"
	var auth *api.Auth
	if testMode {
		auth = api.NewAuth(nil, "", "")
	} else {
		jwtAudience := os.Getenv("AUTH_AUDIENCE")
		domain := os.Getenv("AUTH_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing auth config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}

	var uploader api.Uploader
	if container := os.Getenv("PHOTO_CONTAINER"); container != "" {
		up, err := blob.New(connStr, container)
		if err != nil {
			log.Fatalf("blob: %v", err)
		}
		uploader = up
	}

	var extractor api.Extractor
	if apiKey := os.Getenv("GENAI_API_KEY"); apiKey != "" {
		ex, err := extract.New(context.Background(), apiKey, os.Getenv("GENAI_MODEL"))
		if err != nil {
			log.Fatalf("extract: %v", err)
		}
		extractor = ex
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(echoprometheus.NewMiddleware("leaddesk"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, api.Deps{
		Store:      cached,
		Auth:       auth,
		Resolver:   resolver,
		Linker:     linker,
		Visibility: rule,
		Watcher:    watcher,
		Uploader:   uploader,
		Extractor:  extractor,
		Publisher:  watcher,
		Logger:     logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
