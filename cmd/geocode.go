package main

import (
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/locametry/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Reverse geocode coordinates or search for places",
}

var (
	reverseLat float64
	reverseLng float64
)

var geocodeReverseCmd = &cobra.Command{
	Use:   "reverse",
	Short: "Look up the address at a coordinate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initGeocode(ctx, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Client.Reverse(ctx, reverseLat, reverseLng)
		if err != nil {
			return eris.Wrap(err, "reverse geocode")
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var geocodeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for places matching a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initGeocode(ctx, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Client.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return eris.Wrap(err, "search")
		}
		return printJSON(cmd.OutOrStdout(), results)
	},
}

var batchConcurrency int

var geocodeBatchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Reverse geocode a YAML or JSON list of coordinates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coords, err := loadCoordinates(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		env, err := initGeocode(ctx, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Client.ReverseBatch(ctx, coords, batchConcurrency)
		if err != nil {
			return eris.Wrap(err, "batch reverse geocode")
		}
		return printJSON(cmd.OutOrStdout(), batchOutput(results))
	},
}

// batchLine is one row of batch output.
type batchLine struct {
	Lat    float64                `json:"lat"`
	Lng    float64                `json:"lng"`
	Result *geocode.ReverseResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func batchOutput(results []geocode.BatchResult) []batchLine {
	out := make([]batchLine, 0, len(results))
	for _, r := range results {
		line := batchLine{Lat: r.Coordinate.Lat, Lng: r.Coordinate.Lng, Result: r.Result}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		out = append(out, line)
	}
	return out
}

// loadCoordinates reads a list of {lat, lng} objects. JSON input parses as
// YAML.
func loadCoordinates(path string) ([]geocode.Coordinate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var coords []geocode.Coordinate
	if err := yaml.Unmarshal(data, &coords); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}
	if len(coords) == 0 {
		return nil, eris.Errorf("%s has no coordinates", path)
	}
	zap.L().Debug("loaded coordinates", zap.String("path", path), zap.Int("count", len(coords)))
	return coords, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	geocodeReverseCmd.Flags().Float64Var(&reverseLat, "lat", 0, "latitude in decimal degrees")
	geocodeReverseCmd.Flags().Float64Var(&reverseLng, "lng", 0, "longitude in decimal degrees")
	_ = geocodeReverseCmd.MarkFlagRequired("lat")
	_ = geocodeReverseCmd.MarkFlagRequired("lng")

	geocodeBatchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 4, "lookups in flight")

	geocodeCmd.AddCommand(geocodeReverseCmd, geocodeSearchCmd, geocodeBatchCmd)
	rootCmd.AddCommand(geocodeCmd)
}
