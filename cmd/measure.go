package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/locametry/internal/geometry"
)

var (
	measureMode   string
	measurePoints []string
	measureFile   string
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Measure area, perimeter and dimensions of a point set",
	Long:  "Measures points given with --point lat,lng (repeatable) or read from a YAML/JSON file with mode and points keys.",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := measureInput(measureFile, measureMode, measurePoints)
		if err != nil {
			return err
		}
		mode, err := geometry.ParseMode(input.Mode)
		if err != nil {
			return err
		}
		res, err := geometry.Measure(input.Points, mode)
		if err != nil {
			return eris.Wrap(err, "measure")
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var measureShapefileCmd = &cobra.Command{
	Use:   "shapefile <path.shp>",
	Short: "Measure every polygon record in a shapefile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		features, err := geometry.ReadShapefile(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), measureFeatures(features))
	},
}

// measureRequest is the file form of a measurement.
type measureRequest struct {
	Mode   string           `yaml:"mode"`
	Points []geometry.Point `yaml:"points"`
}

// measureInput merges file and flag input. Flags win over the file.
func measureInput(path, mode string, points []string) (*measureRequest, error) {
	req := &measureRequest{Mode: string(geometry.ModePoly)}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		if err := yaml.Unmarshal(data, req); err != nil {
			return nil, eris.Wrapf(err, "parse %s", path)
		}
	}
	if mode != "" {
		req.Mode = mode
	}
	if len(points) > 0 {
		req.Points = req.Points[:0]
		for _, s := range points {
			p, err := parsePoint(s)
			if err != nil {
				return nil, err
			}
			req.Points = append(req.Points, p)
		}
	}
	return req, nil
}

// parsePoint parses "lat,lng".
func parsePoint(s string) (geometry.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geometry.Point{}, eris.Errorf("point %q: want lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geometry.Point{}, eris.Wrapf(err, "point %q: latitude", s)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return geometry.Point{}, eris.Wrapf(err, "point %q: longitude", s)
	}
	return geometry.Point{Lat: la, Lng: ln}, nil
}

type featureMeasurement struct {
	geometry.Feature
	Measurement *geometry.Result `json:"measurement,omitempty"`
}

func measureFeatures(features []geometry.Feature) []featureMeasurement {
	out := make([]featureMeasurement, 0, len(features))
	for _, f := range features {
		out = append(out, featureMeasurement{
			Feature:     f,
			Measurement: geometry.Compute(f.Points, geometry.ModePoly),
		})
	}
	return out
}

func init() {
	measureCmd.Flags().StringVar(&measureMode, "mode", "", "RECT3, FOUR or POLY (default POLY)")
	measureCmd.Flags().StringArrayVar(&measurePoints, "point", nil, "vertex as lat,lng; repeat in order")
	measureCmd.Flags().StringVar(&measureFile, "file", "", "YAML or JSON file with mode and points")

	measureCmd.AddCommand(measureShapefileCmd)
	rootCmd.AddCommand(measureCmd)
}
