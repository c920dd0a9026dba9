// Command estimate computes a one-off runoff estimate for a single site.
// Precipitation is fetched from Open-Meteo unless -precip is given, and the
// site is located through ipinfo.io when -lat/-lon are omitted and
// IPINFO_ENABLED is set.
//
// Usage:
//
//	go run ./cmd/estimate -lat 39.74 -lon -104.99 -slope 12 -soil 8 -ndvi 0.5
//	go run ./cmd/estimate -precip 50 -slope 5 -json
//	go run ./cmd/estimate -mode historical -start 2022-01-01 -end 2022-12-31 \
//	  -lat 40.01 -lon -105.27 -historical-runoff 4
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/storm-data-runoff/internal/adapter/ipinfo"
	"github.com/couchcryptid/storm-data-runoff/internal/adapter/openmeteo"
	"github.com/couchcryptid/storm-data-runoff/internal/config"
	"github.com/couchcryptid/storm-data-runoff/internal/domain"
	"github.com/couchcryptid/storm-data-runoff/internal/observability"
	"github.com/couchcryptid/storm-data-runoff/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: failed to load .env:", err)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds parsed flags. Optional numeric flags are strings so that an
// omitted flag stays distinct from an explicit zero.
type options struct {
	lat, lon         string
	slope            float64
	soil, ndvi       string
	precip, meanRain string
	cn               string
	historicalRunoff string
	mode             string
	start, end       string
	basis            string
	asJSON           bool
	timeout          time.Duration
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.lat, "lat", "", "site latitude")
	fs.StringVar(&o.lon, "lon", "", "site longitude")
	fs.Float64Var(&o.slope, "slope", 0, "mean slope in degrees")
	fs.StringVar(&o.soil, "soil", "", "dominant soil texture class code (omit when unknown)")
	fs.StringVar(&o.ndvi, "ndvi", "", "mean NDVI (omit when unknown)")
	fs.StringVar(&o.precip, "precip", "", "total precipitation in mm (fetched when omitted)")
	fs.StringVar(&o.meanRain, "precip-mean", "", "mean precipitation in mm, used with -basis mean")
	fs.StringVar(&o.cn, "cn", "", "curve number override")
	fs.StringVar(&o.historicalRunoff, "historical-runoff", "", "observed runoff in mm to compare against")
	fs.StringVar(&o.mode, "mode", domain.ModeForecast, "forecast or historical")
	fs.StringVar(&o.start, "start", "", "range start YYYY-MM-DD")
	fs.StringVar(&o.end, "end", "", "range end YYYY-MM-DD")
	fs.StringVar(&o.basis, "basis", "", "precipitation basis: total or mean (default from PRECIPITATION_BASIS)")
	fs.BoolVar(&o.asJSON, "json", false, "print the estimate as JSON")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	req, err := buildRequest(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	// The CLI does not serve /metrics; keep them off the default registry.
	metrics := observability.NewMetricsForTesting()
	var precipitation domain.PrecipitationSource
	if cfg.OpenMeteoEnabled {
		precipitation = openmeteo.NewSource(cfg, metrics, logger)
	}
	var locator domain.Locator
	if cfg.IPInfoEnabled {
		locator = ipinfo.NewClient(cfg.IPInfoToken, cfg.IPInfoTimeout, logger)
	}
	transformer := pipeline.NewTransformer(precipitation, locator, cfg.ForecastDays, cfg.PrecipitationBasis, logger, metrics)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	est, err := transformer.Estimate(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, "estimate:", err)
		return 1
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(est); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	printTable(stdout, est)
	return 0
}

func buildRequest(o options) (domain.SiteRequest, error) {
	req := domain.SiteRequest{
		SiteID:       "cli",
		SlopeDegrees: o.slope,
		Mode:         o.mode,
		Basis:        o.basis,
	}

	if o.lat != "" || o.lon != "" {
		lat, err := strconv.ParseFloat(o.lat, 64)
		if err != nil {
			return req, fmt.Errorf("-lat: %w", err)
		}
		lon, err := strconv.ParseFloat(o.lon, 64)
		if err != nil {
			return req, fmt.Errorf("-lon: %w", err)
		}
		req.Geo = &domain.Geo{Lat: lat, Lon: lon}
		req.SiteID = fmt.Sprintf("%.4f,%.4f", lat, lon)
	}

	var err error
	if req.SoilTextureCode, err = optionalInt("-soil", o.soil); err != nil {
		return req, err
	}
	if req.NDVI, err = optionalFloat("-ndvi", o.ndvi); err != nil {
		return req, err
	}
	if req.CurveNumber, err = optionalFloat("-cn", o.cn); err != nil {
		return req, err
	}
	if req.HistoricalRunoffMM, err = optionalFloat("-historical-runoff", o.historicalRunoff); err != nil {
		return req, err
	}

	if o.start != "" || o.end != "" {
		r, err := domain.NewDateRange(o.start, o.end)
		if err != nil {
			return req, err
		}
		req.Range = &r
	}

	total, err := optionalFloat("-precip", o.precip)
	if err != nil {
		return req, err
	}
	mean, err := optionalFloat("-precip-mean", o.meanRain)
	if err != nil {
		return req, err
	}
	if total != nil || mean != nil {
		sample := domain.PrecipitationSample{}
		if total != nil {
			sample.TotalMM = *total
		}
		if mean != nil {
			sample.MeanMM = *mean
		}
		req.Precipitation = &sample
	}

	return req, req.Normalize()
}

func optionalInt(name, v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &n, nil
}

func optionalFloat(name, v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &f, nil
}

func printTable(w io.Writer, est domain.SiteEstimate) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k string, v any) { fmt.Fprintf(tw, "%s\t%v\n", k, v) }

	row("site", est.SiteID)
	row("mode", est.Mode)
	if est.Geo != nil {
		row("location", fmt.Sprintf("%.4f, %.4f", est.Geo.Lat, est.Geo.Lon))
	}
	if !est.Precipitation.Range.IsZero() {
		row("range", est.Precipitation.Range.StartDate()+" .. "+est.Precipitation.Range.EndDate())
	}
	row("precipitation source", est.Precipitation.Source)
	row("precipitation basis", est.Basis)
	row("precipitation (mm)", est.Runoff.PrecipitationMM)
	row("curve number", fmt.Sprintf("%g (%s)", est.Runoff.CurveNumber, est.CurveNumberSource))
	if est.SoilClass != "" {
		row("soil class", est.SoilClass)
	}
	row("slope class", est.SlopeClass)
	row("retention S (mm)", est.Runoff.PotentialMaxRetentionMM)
	row("abstraction Ia (mm)", est.Runoff.InitialAbstractionMM)
	row("runoff Q (mm)", est.Runoff.RunoffMM)
	if c := est.Comparison; c != nil {
		row("historical runoff (mm)", c.HistoricalMM)
		row("difference (mm)", c.DifferenceMM)
		if c.AccuracyPct != nil {
			row("accuracy (%)", *c.AccuracyPct)
		} else {
			row("accuracy (%)", "n/a")
		}
	}
	tw.Flush() //nolint:errcheck // terminal output
}
