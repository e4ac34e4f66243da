package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/civicworks/roster-cli/internal/geojob"
	"github.com/civicworks/roster-cli/internal/store"
	"github.com/civicworks/roster-cli/pkg/geocode"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "roster.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGeocoder() geocode.Client {
	return geocode.NewClient(
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithInterval(time.Duration(cfg.Geocode.IntervalSecs)*time.Second),
		geocode.WithHTTPClient(geocodeHTTPClient(cfg.Geocode.TimeoutSecs)),
	)
}

func geocodeHTTPClient(timeoutSecs int) *http.Client {
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}
	return &http.Client{Timeout: time.Duration(timeoutSecs) * time.Second}
}

func initEngine(st store.Store) *geojob.Engine {
	return geojob.NewEngine(st, initGeocoder())
}
