package main

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/99minutos/courier-tracking/internal/core/domain"
	"github.com/99minutos/courier-tracking/internal/core/service"
	"github.com/99minutos/courier-tracking/internal/infrastructure/geocoding"
	"github.com/99minutos/courier-tracking/pkg/logger"
)

var resolveFlags struct {
	url       string
	country   string
	userAgent string
	timeout   time.Duration
	verbose   bool
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <address>",
	Short: "Geocode an address with the delivery query strategies",
	Long: `Runs the same ordered query strategies used for delivery destinations
(full address, then street and number) and prints "lat,lng".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFlags.url, "url", geocoding.DefaultBaseURL, "geocoding service base URL")
	resolveCmd.Flags().StringVar(&resolveFlags.country, "country", "", "comma separated ISO country codes to restrict results")
	resolveCmd.Flags().StringVar(&resolveFlags.userAgent, "user-agent", geocoding.DefaultUserAgent, "User-Agent sent to the geocoding service")
	resolveCmd.Flags().DurationVar(&resolveFlags.timeout, "timeout", 10*time.Second, "timeout per query attempt")
	resolveCmd.Flags().BoolVarP(&resolveFlags.verbose, "verbose", "v", false, "log every attempt")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	address := strings.Join(args, " ")

	level, out := "warn", io.Writer(io.Discard)
	if resolveFlags.verbose {
		level, out = "debug", cmd.ErrOrStderr()
	}
	log := logger.New(logger.Options{Level: level, Pretty: true, Output: out})

	resolver := service.NewAddressResolver(
		geocoding.NewNominatim(geocoding.Config{
			BaseURL:      resolveFlags.url,
			UserAgent:    resolveFlags.userAgent,
			CountryCodes: resolveFlags.country,
			Timeout:      resolveFlags.timeout,
		}),
		nil,
		resolveFlags.timeout,
		log,
	)

	pos, err := resolver.Resolve(cmd.Context(), "", address)
	if err != nil {
		var re *domain.ResolutionError
		if errors.As(err, &re) && re.TimedOut {
			cmd.PrintErrf("lookup of %q timed out after %s\n", re.Query, resolveFlags.timeout)
		}
		return err
	}

	cmd.Printf("%.6f,%.6f\n", pos.Lat, pos.Lng)
	return nil
}
