package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/geofence"
)

// NewDistanceCommand creates the distance command.
func NewDistanceCommand(rootOpts *RootOptions) *cobra.Command {
	var radius float64

	cmd := &cobra.Command{
		Use:   "distance <lat> <lon> <site-lat> <site-lon>",
		Short: "Check a location against a site perimeter",
		Long: `Compute the great-circle distance from a location to a site and report
whether it falls inside the site perimeter.

Example:
  fieldsync distance -23.5506 -46.6334 -23.5505 -46.6333 --radius 500`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)

			coords := make([]float64, 4)
			for i, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return out.Error(ExitCommandError, "invalid coordinate", err)
				}
				coords[i] = v
			}

			current := geofence.GeoPoint{Latitude: coords[0], Longitude: coords[1]}
			zone := geofence.Zone{
				Center:       geofence.GeoPoint{Latitude: coords[2], Longitude: coords[3]},
				RadiusMeters: radius,
			}

			result, err := geofence.Validate(current, zone)
			if err != nil {
				return out.Error(ExitCommandError, "cannot check location", err)
			}
			if err := out.Success(result, func(w io.Writer) { fmt.Fprintln(w, result.Message()) }); err != nil {
				return err
			}
			if !result.Admitted {
				return &ExitError{Code: ExitFailure, Message: "outside perimeter"}
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&radius, "radius", geofence.DefaultRadiusMeters, "perimeter radius in meters")
	return cmd
}
