// Command companionsyncd runs the synchronization engine as a long-lived
// process: it connects to SurrealDB, loads every domain, subscribes the
// owner-scoped live feeds, and keeps the local snapshot cache current until
// interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/VishalT25/companion-sync/pkg/cache"
	"github.com/VishalT25/companion-sync/pkg/manager"
	"github.com/VishalT25/companion-sync/pkg/models"
	"github.com/VishalT25/companion-sync/pkg/realtime"
	"github.com/VishalT25/companion-sync/pkg/remote"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type config struct {
	endpoint  string
	namespace string
	database  string
	user      string
	pass      string
	cachePath string
	ownerID   string
	debug     bool
}

func parse(args []string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("companionsyncd", flag.ContinueOnError)
	fs.StringVar(&cfg.endpoint, "endpoint", getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"), "SurrealDB websocket URL")
	fs.StringVar(&cfg.namespace, "ns", getEnv("SURREALDB_NS", "companion"), "SurrealDB namespace")
	fs.StringVar(&cfg.database, "db", getEnv("SURREALDB_DB", "companion"), "SurrealDB database")
	fs.StringVar(&cfg.user, "user", getEnv("SURREALDB_USER", "root"), "SurrealDB user")
	fs.StringVar(&cfg.pass, "pass", getEnv("SURREALDB_PASS", "root"), "SurrealDB password")
	fs.StringVar(&cfg.cachePath, "cache", getEnv("COMPANION_CACHE", "companion-sync.db"), "snapshot cache path")
	fs.StringVar(&cfg.ownerID, "owner", getEnv("COMPANION_OWNER_ID", ""), "owner user UUID")
	fs.BoolVar(&cfg.debug, "debug", false, "verbose logging")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string) error {
	cfg, err := parse(args)
	if err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if cfg.debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	owner, err := ownerFrom(cfg.ownerID, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := remote.Connect(ctx, cfg.endpoint, cfg.namespace, cfg.database, cfg.user, cfg.pass)
	if err != nil {
		return err
	}
	defer db.Close(context.WithoutCancel(ctx))

	snapshots, err := cache.Open(cfg.cachePath, log)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	courseRepo := remote.NewSurreal[models.Course](db, models.TableCourses, log)
	assignRepo := remote.NewSurreal[models.Assignment](db, models.TableAssignments, log)
	eventRepo := remote.NewSurreal[models.Event](db, models.TableEvents, log)
	catRepo := remote.NewSurreal[models.Category](db, models.TableCategories, log)

	courses := manager.NewCourses(manager.CoursesConfig{
		Owner:           owner,
		CourseRepo:      courseRepo,
		AssignmentRepo:  assignRepo,
		CourseCache:     cache.NewSnapshot[models.Course](snapshots, models.TableCourses),
		AssignmentCache: cache.NewSnapshot[models.Assignment](snapshots, models.TableAssignments),
		Log:             log,
	})
	planner := manager.NewPlanner(manager.PlannerConfig{
		Owner:         owner,
		EventRepo:     eventRepo,
		CategoryRepo:  catRepo,
		EventCache:    cache.NewSnapshot[models.Event](snapshots, models.TableEvents),
		CategoryCache: cache.NewSnapshot[models.Category](snapshots, models.TableCategories),
		Log:           log,
	})

	// Initial loads are best-effort: a failure leaves the cache bootstrap
	// serving and the live feed's first SYNC event repairs the store once
	// the backend is reachable.
	if err := courses.LoadCourses(ctx); err != nil {
		log.Warn().Err(err).Msg("initial course load failed")
	}
	if err := courses.LoadAssignments(ctx); err != nil {
		log.Warn().Err(err).Msg("initial assignment load failed")
	}
	if err := planner.LoadEvents(ctx); err != nil {
		log.Warn().Err(err).Msg("initial event load failed")
	}
	if err := planner.LoadCategories(ctx); err != nil {
		log.Warn().Err(err).Msg("initial category load failed")
	}

	coord := realtime.NewCoordinator()
	realtime.Route(ctx, coord,
		realtime.NewLiveFeed(db, courseRepo, models.TableCourses, owner, log),
		courses.ReconcileCourses)
	realtime.Route(ctx, coord,
		realtime.NewLiveFeed(db, assignRepo, models.TableAssignments, owner, log),
		courses.ReconcileAssignments)
	realtime.Route(ctx, coord,
		realtime.NewLiveFeed(db, eventRepo, models.TableEvents, owner, log),
		planner.ReconcileEvents)
	realtime.Route(ctx, coord,
		realtime.NewLiveFeed(db, catRepo, models.TableCategories, owner, log),
		planner.ReconcileCategories)

	log.Info().
		Str("endpoint", cfg.endpoint).
		Str("owner", owner.String()).
		Msg("companion-sync running")

	<-ctx.Done()
	stop()
	coord.Wait()

	log.Info().
		Interface("courses", courses.CourseStats()).
		Interface("assignments", courses.AssignmentStats()).
		Interface("events", planner.EventStats()).
		Interface("categories", planner.CategoryStats()).
		Msg("shutting down")
	return nil
}

// ownerFrom resolves the owner identity. An ephemeral identity still lets the
// engine run against an empty dataset, which is useful for smoke testing.
func ownerFrom(raw string, log zerolog.Logger) (models.UserID, error) {
	if raw == "" {
		owner := models.NewUserID()
		log.Warn().Str("owner", owner.String()).Msg("no owner configured, using an ephemeral identity")
		return owner, nil
	}
	owner, err := models.ParseUserID(raw)
	if err != nil {
		return models.UserID{}, fmt.Errorf("invalid owner id %q: %w", raw, err)
	}
	return owner, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
