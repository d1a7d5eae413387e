// Command overpass runs Overpass API queries from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/overpass/pkg/coords"
	"github.com/NERVsystems/overpass/pkg/favorites"
	"github.com/NERVsystems/overpass/pkg/geo"
	"github.com/NERVsystems/overpass/pkg/overpass"
	"github.com/NERVsystems/overpass/pkg/tracing"
)

const version = "0.1.0"

var (
	debug     bool
	endpoint  string
	userAgent string
	center    string
	radius    float64
	preset    string
	shopType  string
	rawQuery  string
	limit     int

	// Rate limits
	rps   float64
	burst int

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Favorites flags
	favoritesPath string
	saveFavorite  string
	useFavorite   string
	listFavorites bool
)

func init() {
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&endpoint, "endpoint", overpass.EndpointMain,
		fmt.Sprintf("Overpass API endpoint (known: %s)", strings.Join(overpass.KnownEndpoints, ", ")))
	flag.StringVar(&userAgent, "user-agent", overpass.DefaultUserAgent, "User-Agent string for API requests")
	flag.StringVar(&center, "center", "37.7749, -122.4194", "Center coordinate (decimal degrees or DMS)")
	flag.Float64Var(&radius, "radius", 1000, "Search radius in meters")
	flag.StringVar(&preset, "preset", "toilets", "Preset query: toilets, restaurants, cafes, hotels, shops, parks")
	flag.StringVar(&shopType, "shop-type", "", "Shop type for the shops preset (empty matches any shop)")
	flag.StringVar(&rawQuery, "query", "", "Raw Overpass QL body (overrides -preset)")
	flag.IntVar(&limit, "limit", 20, "Maximum number of results to print")

	flag.Float64Var(&rps, "rps", 1.0, "Rate limit in requests per second")
	flag.IntVar(&burst, "burst", 1, "Rate limit burst size")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", false, "Serve Prometheus metrics")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	flag.StringVar(&favoritesPath, "favorites-file", defaultFavoritesPath(), "Favorites store file")
	flag.StringVar(&saveFavorite, "save-favorite", "", "Save the center coordinate as a named favorite and exit")
	flag.StringVar(&useFavorite, "favorite", "", "Use a saved favorite as the center coordinate")
	flag.BoolVar(&listFavorites, "list-favorites", false, "List saved favorites and exit")
}

func defaultFavoritesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "favorites.json"
	}
	return home + "/.overpass/favorites.json"
}

func main() {
	flag.Parse()

	var logLevel slog.Level
	if debug {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	shutdownTracing, err := tracing.InitTracing(ctx, version)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		// Continue without tracing - it's not critical
	} else {
		defer func() {
			if err := shutdownTracing(ctx); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
	}

	if enableMonitoring {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("monitoring server listening", "addr", monitoringAddr)
			if err := http.ListenAndServe(monitoringAddr, mux); err != nil {
				logger.Error("monitoring server failed", "error", err)
			}
		}()
	}

	if err := run(ctx, logger); err != nil {
		logger.Error("query failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	favs, err := openFavorites(logger)
	if err != nil {
		return err
	}

	if listFavorites {
		for _, f := range favs.All() {
			fmt.Printf("%s  [%.5f, %.5f]  %s\n",
				f.Name, f.Location.Latitude, f.Location.Longitude, f.Type)
		}
		return nil
	}

	if saveFavorite != "" {
		parsed, err := coords.Parse(center)
		if err != nil {
			return fmt.Errorf("invalid center: %w", err)
		}
		return favs.Add(favorites.Favorite{
			Name:     saveFavorite,
			Location: parsed.Location,
			Type:     preset,
		})
	}

	client, err := overpass.NewClient(
		overpass.WithEndpoint(endpoint),
		overpass.WithUserAgent(userAgent),
		overpass.WithRateLimit(rps, burst),
		overpass.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	query, err := buildQuery(favs)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := client.Execute(ctx, query)
	if err != nil {
		return err
	}

	logger.Info("query complete",
		"elements", len(resp.Elements),
		"duration", time.Since(start),
		"generator", resp.Generator,
	)

	printResults(resp)
	return nil
}

func openFavorites(logger *slog.Logger) (*favorites.List, error) {
	store, err := favorites.NewFileStore(favoritesPath)
	if err != nil {
		return nil, fmt.Errorf("opening favorites store: %w", err)
	}
	return favorites.NewList(store, logger)
}

func buildQuery(favs *favorites.List) (overpass.Query, error) {
	if rawQuery != "" {
		return overpass.NewRawQuery(rawQuery)
	}

	centerLoc, err := resolveCenter(favs)
	if err != nil {
		return overpass.Query{}, err
	}

	bbox, err := geo.BoundingBoxFromCenter(centerLoc, radius)
	if err != nil {
		return overpass.Query{}, err
	}

	switch preset {
	case "toilets":
		return overpass.ToiletsQuery(bbox)
	case "restaurants":
		return overpass.RestaurantsQuery(bbox)
	case "cafes":
		return overpass.CafesQuery(bbox)
	case "hotels":
		return overpass.HotelsQuery(bbox)
	case "shops":
		return overpass.ShopsQuery(bbox, shopType)
	case "parks":
		return overpass.ParksQuery(bbox)
	default:
		return overpass.Query{}, fmt.Errorf("unknown preset %q", preset)
	}
}

func resolveCenter(favs *favorites.List) (geo.Location, error) {
	if useFavorite != "" {
		for _, f := range favs.All() {
			if f.Name == useFavorite {
				return f.Location, nil
			}
		}
		return geo.Location{}, fmt.Errorf("no favorite named %q", useFavorite)
	}

	parsed, err := coords.Parse(center)
	if err != nil {
		return geo.Location{}, fmt.Errorf("invalid center: %w", err)
	}
	return parsed.Location, nil
}

func printResults(resp *overpass.Response) {
	if len(resp.Elements) == 0 {
		fmt.Println("no results")
		if resp.Remark != "" {
			fmt.Println("remark:", resp.Remark)
		}
		return
	}

	count := 0
	for _, e := range resp.Elements {
		// Skeleton nodes carry a position but no tags; skip them in the
		// listing.
		if len(e.Tags) == 0 {
			continue
		}
		if count >= limit {
			break
		}
		count++

		name := e.Name()
		if name == "" {
			name = "(unnamed)"
		}
		line := fmt.Sprintf("%s %d  %s", e.Type, e.ID, name)
		if loc, ok := e.Location(); ok {
			line += fmt.Sprintf("  [%.5f, %.5f]", loc.Latitude, loc.Longitude)
		}
		if addr, ok := e.Address(); ok {
			line += "  " + addr.DisplayString()
		}
		fmt.Println(line)
	}
	fmt.Printf("%d element(s) total\n", len(resp.Elements))
}
