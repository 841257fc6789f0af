// Command geoartifacts-prefetch downloads datasets into the geoartifacts
// cache so that later runs work offline.
//
// Usage:
//
//	geoartifacts-prefetch gadm BRA --depth 1
//	geoartifacts-prefetch naturalearth countries --scale 10m
//	geoartifacts-prefetch inmet --kind automatic
//	geoartifacts-prefetch geobr municipality --code RJ
//	geoartifacts-prefetch image Strebelle
//	geoartifacts-prefetch validate
//
// Settings come from flags, GEOARTIFACTS_* environment variables and a .env
// file in the working directory.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andreiashu/geoartifacts"
	"github.com/andreiashu/geoartifacts/geotable"
	"github.com/andreiashu/geoartifacts/internal/logging"
)

var (
	cacheDir  string
	assumeYes bool
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:           "geoartifacts-prefetch",
	Short:         "Warm the geoartifacts download cache",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "cache root (default: GEOARTIFACTS_CACHE_DIR or the user cache dir)")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "download without asking (also GEOARTIFACTS_ACCEPT_DOWNLOADS=true)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(gadmCmd(), naturalEarthCmd(), inmetCmd(), geobrCmd(), imageCmd(), validateCmd())
}

// initConfig loads .env files before the library reads GEOARTIFACTS_*.
func initConfig() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// newClient builds a client from the environment, then applies flags.
func newClient() *geoartifacts.Client {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	opts := append(geoartifacts.ConfigFromEnv(),
		geoartifacts.WithLogger(logging.New(os.Stderr, level)),
		geoartifacts.WithConfirm(confirmOnStdin),
		geoartifacts.WithAcceptDownloads(acceptDownloads(assumeYes)),
	)
	if cacheDir != "" {
		opts = append(opts, geoartifacts.WithCacheDir(cacheDir))
	}
	return geoartifacts.New(opts...)
}

// acceptDownloads decides whether first downloads skip the prompt. Unlike the
// library, the command asks unless --yes is given or
// GEOARTIFACTS_ACCEPT_DOWNLOADS is set to a true value.
func acceptDownloads(yes bool) bool {
	if yes {
		return true
	}
	v, ok := os.LookupEnv("GEOARTIFACTS_ACCEPT_DOWNLOADS")
	if !ok {
		return false
	}
	accept, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && accept
}

// confirmOnStdin asks before a first download when downloads are not
// accepted automatically.
func confirmOnStdin(req geoartifacts.DownloadRequest) bool {
	fmt.Fprintf(os.Stderr, "Download %s from %s? [y/N] ", req.Identifier, req.URL)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func report(name string, t *geotable.Table) {
	fmt.Printf("%s: %d rows, %d columns (%s)\n", name, t.NumRows(), t.NumColumns(), t.Domain().Kind())
}

func gadmCmd() *cobra.Command {
	var (
		depth      int
		subregions []string
	)
	cmd := &cobra.Command{
		Use:   "gadm ISO3",
		Short: "Fetch GADM administrative boundaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newClient().GADM(cmd.Context(), args[0],
				geoartifacts.Subregions(subregions...), geoartifacts.Depth(depth))
			if err != nil {
				return err
			}
			report("gadm "+args[0], t)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "levels below the last subregion")
	cmd.Flags().StringSliceVar(&subregions, "subregion", nil, "subregion names, outermost first")
	return cmd
}

func naturalEarthCmd() *cobra.Command {
	var (
		scale, variant string
		geojson        bool
	)
	cmd := &cobra.Command{
		Use:   "naturalearth ENTITY",
		Short: "Fetch a Natural Earth layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []geoartifacts.NEOption{geoartifacts.Scale(scale), geoartifacts.Variant(variant)}
			if geojson {
				opts = append(opts, geoartifacts.UseGeoJSON())
			}
			t, err := newClient().NaturalEarth(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			report("naturalearth "+args[0], t)
			return nil
		},
	}
	cmd.Flags().StringVar(&scale, "scale", "110m", "10m, 50m or 110m")
	cmd.Flags().StringVar(&variant, "variant", "", "entity variant")
	cmd.Flags().BoolVar(&geojson, "geojson", false, "fetch the GeoJSON rendition")
	return cmd
}

func inmetCmd() *cobra.Command {
	var (
		kind string
		year int
	)
	cmd := &cobra.Command{
		Use:   "inmet",
		Short: "Fetch INMET weather stations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := newClient()
			if year != 0 {
				t, err := c.HistoricalStations(cmd.Context(), year)
				if err != nil {
					return err
				}
				report(fmt.Sprintf("inmet %d", year), t)
				return nil
			}
			t, err := c.WeatherStations(cmd.Context(), kind)
			if err != nil {
				return err
			}
			report("inmet "+kind, t)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", geoartifacts.StationsAutomatic, "automatic or conventional")
	cmd.Flags().IntVar(&year, "year", 0, "historical archive year")
	return cmd
}

func geobrCmd() *cobra.Command {
	var (
		code string
		year int
	)
	cmd := &cobra.Command{
		Use:   "geobr GEO",
		Short: "Fetch a geobr geography",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []geoartifacts.GeoBROption
			if code != "" {
				opts = append(opts, geoartifacts.Code(code))
			}
			if year != 0 {
				opts = append(opts, geoartifacts.Year(year))
			}
			t, err := newClient().GeoBR(cmd.Context(), args[0], opts...)
			if err != nil {
				return err
			}
			report("geobr "+args[0], t)
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "state code, abbreviation, unit code or all")
	cmd.Flags().IntVar(&year, "year", 0, "edition year (default: latest)")
	return cmd
}

func imageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image NAME",
		Short: "Fetch a training image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := newClient().TrainingImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			report("image "+args[0], t)
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the embedded catalogs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := geoartifacts.ValidateCatalogs(); err != nil {
				return err
			}
			fmt.Println("Catalogs OK.")
			return nil
		},
	}
}
