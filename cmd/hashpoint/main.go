// hashpoint is the offline companion tool: it computes destinations,
// resolves effective trading dates, and manages the known-location
// registry against the same store the daemon uses.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/geohash-dispatch/internal/adapter/djia"
	"github.com/couchcryptid/geohash-dispatch/internal/adapter/store"
	"github.com/couchcryptid/geohash-dispatch/internal/config"
	"github.com/couchcryptid/geohash-dispatch/internal/domain"
	"github.com/couchcryptid/geohash-dispatch/internal/observability"
)

var (
	flagDate   string
	flagLat    float64
	flagLon    float64
	flagGlobal bool
	flagValue  string

	flagName      string
	flagThreshold float64
)

var rootCmd = &cobra.Command{
	Use:   "hashpoint",
	Short: "Compute geohashing destinations from the command line",
	Long: `hashpoint derives daily destination coordinates from the date and the
published index value, the same way the dispatch daemon does. It shares
the daemon's store, so values fetched here are cached for the daemon and
vice versa.`,
	SilenceUsage: true,
}

var pointCmd = &cobra.Command{
	Use:   "point",
	Short: "Compute the destination for a date and position",
	RunE:  runPoint,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which trading day's value a date hashes",
	RunE:  runResolve,
}

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage the known-location registry",
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered known locations",
	RunE:  runLocationsList,
}

var locationsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a known location",
	RunE:  runLocationsAdd,
}

func init() {
	for _, cmd := range []*cobra.Command{pointCmd, resolveCmd} {
		cmd.Flags().StringVarP(&flagDate, "date", "d", "", "Request date (YYYY-MM-DD, default today)")
		cmd.Flags().Float64Var(&flagLat, "lat", 0, "Latitude inside the target graticule")
		cmd.Flags().Float64Var(&flagLon, "lon", 0, "Longitude inside the target graticule")
		cmd.Flags().BoolVarP(&flagGlobal, "global", "g", false, "Compute the global destination instead")
	}
	pointCmd.Flags().StringVar(&flagValue, "value", "", "Use this index value instead of store/network")

	locationsAddCmd.Flags().StringVarP(&flagName, "name", "n", "", "Location name")
	locationsAddCmd.Flags().Float64Var(&flagLat, "lat", 0, "Latitude")
	locationsAddCmd.Flags().Float64Var(&flagLon, "lon", 0, "Longitude")
	locationsAddCmd.Flags().Float64VarP(&flagThreshold, "threshold", "t", 10, "Notify threshold in km")
	_ = locationsAddCmd.MarkFlagRequired("name")
	_ = locationsAddCmd.MarkFlagRequired("lat")
	_ = locationsAddCmd.MarkFlagRequired("lon")

	locationsCmd.AddCommand(locationsListCmd, locationsAddCmd)
	rootCmd.AddCommand(pointCmd, resolveCmd, locationsCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseRequest(cmd *cobra.Command) (time.Time, *domain.Graticule, error) {
	date := time.Now().UTC()
	if flagDate != "" {
		var err error
		date, err = time.Parse("2006-01-02", flagDate)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", flagDate)
		}
	}

	if flagGlobal {
		return date, nil, nil
	}
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return time.Time{}, nil, fmt.Errorf("either --global or both --lat and --lon are required")
	}
	g, err := domain.GraticuleAt(flagLat, flagLon)
	if err != nil {
		return time.Time{}, nil, err
	}
	return date, &g, nil
}

func runPoint(cmd *cobra.Command, _ []string) error {
	date, g, err := parseRequest(cmd)
	if err != nil {
		return err
	}
	effective := domain.EffectiveDate(date, g)

	value := flagValue
	if value != "" && !domain.ValidIndexValue(value) {
		return fmt.Errorf("invalid index value %q", value)
	}
	if value == "" {
		value, err = indexValueFor(cmd.Context(), effective, g)
		if err != nil {
			return err
		}
	}

	dest := domain.ComputeDestination(effective, value, g)
	if g != nil {
		fmt.Printf("Graticule:      %s\n", g.String())
	} else {
		fmt.Printf("Globalhash\n")
	}
	fmt.Printf("Date:           %s\n", date.Format("2006-01-02"))
	fmt.Printf("Effective date: %s\n", effective.Format("2006-01-02"))
	fmt.Printf("Index value:    %s\n", value)
	fmt.Printf("Destination:    %.6f, %.6f\n", dest.Lat, dest.Lon)
	return nil
}

func runResolve(cmd *cobra.Command, _ []string) error {
	date, g, err := parseRequest(cmd)
	if err != nil {
		return err
	}
	effective := domain.EffectiveDate(date, g)

	scope := "global"
	if g != nil {
		scope = g.String()
	}
	fmt.Printf("%s in %s hashes the %s opening value\n",
		date.Format("2006-01-02"), scope, effective.Format("2006-01-02"))
	return nil
}

// indexValueFor checks the shared store, then falls back to the index
// source, caching what it fetches.
func indexValueFor(ctx context.Context, effective time.Time, g *domain.Graticule) (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}

	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	if rec, ok, err := db.Lookup(ctx, effective); err == nil && ok {
		return rec.Value, nil
	}

	client := djia.NewClient(cfg.DJIABaseURL, cfg.DJIATimeout, nil, observability.NewLogger(cfg))
	outcome := client.FetchIndexValue(ctx, effective)
	if outcome.Kind != domain.OutcomeSuccess {
		return "", fmt.Errorf("fetch index value for %s: %s", effective.Format("2006-01-02"), outcome.Kind)
	}

	rec := domain.NewStockRecord(effective, outcome.Value)
	if err := db.Store(ctx, rec); err != nil {
		return "", err
	}
	return outcome.Value, nil
}

func runLocationsList(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer db.Close()

	locs, err := db.KnownLocations(cmd.Context())
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		fmt.Println("no known locations registered")
		return nil
	}
	for _, loc := range locs {
		fmt.Printf("%-20s %9.4f, %9.4f  cell %-9s threshold %.1f km\n",
			loc.Name, loc.Lat, loc.Lon, loc.Graticule.String(), loc.ThresholdKm)
	}
	return nil
}

func runLocationsAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer db.Close()

	loc, err := domain.NewKnownLocation(flagName, flagLat, flagLon, flagThreshold)
	if err != nil {
		return err
	}
	if err := db.AddKnownLocation(cmd.Context(), loc); err != nil {
		return err
	}
	fmt.Printf("registered %s at %.4f, %.4f (cell %s)\n",
		loc.Name, loc.Lat, loc.Lon, loc.Graticule.String())
	return nil
}
