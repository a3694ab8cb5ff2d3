package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/actions"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/agent"
	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/geofence"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/logging"
	"github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/models"
)

// punchOptions holds flags for the punch command.
type punchOptions struct {
	employee int64
	kind     string
	lat, lon float64
	siteID   string
	siteLat  float64
	siteLon  float64
	radius   float64
}

// NewPunchCommand creates the punch command.
func NewPunchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &punchOptions{}

	cmd := &cobra.Command{
		Use:   "punch",
		Short: "Record a time-clock punch",
		Long: `Record a time-clock punch, delivering it now when the API is reachable
and queueing it otherwise.

When the site coordinates are given the punch location is checked against
the site perimeter first; punches outside it are refused.

Example:
  fieldsync punch --employee 7 --kind entrada --lat -23.5506 --lon -46.6334 \
    --site-lat -23.5505 --site-lon -46.6333 --site-radius 500`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)

			kind, err := actions.ParsePunchKind(opts.kind)
			if err != nil {
				return out.Error(ExitCommandError, "invalid punch", err)
			}
			req := actions.PunchRequest{EmployeeID: opts.employee, Kind: kind}

			flags := cmd.Flags()
			if flags.Changed("lat") || flags.Changed("lon") {
				req.Location = &geofence.GeoPoint{Latitude: opts.lat, Longitude: opts.lon}
			}
			if flags.Changed("site-lat") && flags.Changed("site-lon") {
				site := &geofence.Site{ID: opts.siteID, Latitude: &opts.siteLat, Longitude: &opts.siteLon}
				if flags.Changed("site-radius") {
					site.RadiusMeters = &opts.radius
				}
				req.Site = site
			}

			return withAgent(cmd, rootOpts, func(ctx context.Context, a *agent.Agent) error {
				receipt, err := a.Recorder.RecordPunch(ctx, req)
				if err != nil {
					return out.Error(refusalCode(err), "punch not recorded", err)
				}
				return out.Success(receipt, func(w io.Writer) { printReceipt(w, receipt) })
			})
		},
	}

	cmd.Flags().Int64Var(&opts.employee, "employee", 0, "employee id (required)")
	cmd.Flags().StringVar(&opts.kind, "kind", string(actions.PunchIn), "punch kind (entrada|saida_almoco|volta_almoco|saida)")
	cmd.Flags().Float64Var(&opts.lat, "lat", 0, "device latitude")
	cmd.Flags().Float64Var(&opts.lon, "lon", 0, "device longitude")
	cmd.Flags().StringVar(&opts.siteID, "site", "", "site id")
	cmd.Flags().Float64Var(&opts.siteLat, "site-lat", 0, "site latitude")
	cmd.Flags().Float64Var(&opts.siteLon, "site-lon", 0, "site longitude")
	cmd.Flags().Float64Var(&opts.radius, "site-radius", geofence.DefaultRadiusMeters, "site radius in meters")
	_ = cmd.MarkFlagRequired("employee")

	return cmd
}

// NewSignCommand creates the sign command.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	var signature, signatureFile string

	cmd := &cobra.Command{
		Use:   "sign <document-id>",
		Short: "Record a document signature",
		Long: `Record the signature of a document, delivering it now when the API is
reachable and queueing it otherwise.

Example:
  fieldsync sign 42 --signature-file ./signature.b64`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)

			if signatureFile != "" {
				data, err := os.ReadFile(signatureFile)
				if err != nil {
					return out.Error(ExitCommandError, "failed to read signature", err)
				}
				signature = strings.TrimSpace(string(data))
			}

			return withAgent(cmd, rootOpts, func(ctx context.Context, a *agent.Agent) error {
				receipt, err := a.Recorder.SignDocument(ctx, args[0], signature)
				if err != nil {
					return out.Error(refusalCode(err), "signature not recorded", err)
				}
				return out.Success(receipt, func(w io.Writer) { printReceipt(w, receipt) })
			})
		},
	}

	cmd.Flags().StringVar(&signature, "signature", "", "signature data")
	cmd.Flags().StringVar(&signatureFile, "signature-file", "", "read signature data from file")
	cmd.MarkFlagsOneRequired("signature", "signature-file")
	cmd.MarkFlagsMutuallyExclusive("signature", "signature-file")

	return cmd
}

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	var category, endpoint, method, payload, payloadFile string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record an arbitrary API call",
		Long: `Record a call to any API endpoint, delivering it now when the API is
reachable and queueing it otherwise. The payload is sent as the JSON body.

Example:
  fieldsync enqueue --endpoint /api/checklists --method POST \
    --payload '{"obraId": 12, "itens": []}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.output(cmd)

			cat, err := models.ParseCategory(category)
			if err != nil {
				return out.Error(ExitCommandError, "invalid action", err)
			}
			if payloadFile != "" {
				data, err := os.ReadFile(payloadFile)
				if err != nil {
					return out.Error(ExitCommandError, "failed to read payload", err)
				}
				payload = string(data)
			}
			var body json.RawMessage
			if strings.TrimSpace(payload) != "" {
				body = json.RawMessage(payload)
			}
			target := models.Target{Endpoint: endpoint, Method: method}

			return withAgent(cmd, rootOpts, func(ctx context.Context, a *agent.Agent) error {
				receipt, err := a.Recorder.Enqueue(ctx, cat, target, body)
				if err != nil {
					return out.Error(refusalCode(err), "action not recorded", err)
				}
				return out.Success(receipt, func(w io.Writer) { printReceipt(w, receipt) })
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", string(models.CategoryOther), "action category (punch|document_signature|other)")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint path (required)")
	cmd.Flags().StringVar(&method, "method", "POST", "HTTP method")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON body")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the JSON body from file")
	_ = cmd.MarkFlagRequired("endpoint")
	cmd.MarkFlagsMutuallyExclusive("payload", "payload-file")

	return cmd
}

// withAgent builds an agent for a one-shot command and closes it afterwards.
func withAgent(cmd *cobra.Command, rootOpts *RootOptions, fn func(ctx context.Context, a *agent.Agent) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := agent.New(ctx, rootOpts.Config)
	if err != nil {
		return rootOpts.output(cmd).Error(ExitCommandError, "failed to open agent", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logging.Error("Error closing agent", closeErr, nil)
		}
	}()
	return fn(ctx, a)
}

// refusalCode separates refusals of the action itself from command errors.
func refusalCode(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrOutsidePerimeter, apperrors.ErrLocationRequired, apperrors.ErrSubmitRejected:
		return ExitFailure
	default:
		return ExitCommandError
	}
}

func printReceipt(w io.Writer, r actions.Receipt) {
	switch {
	case r.Delivered:
		fmt.Fprintf(w, "delivered %s\n", r.ActionID)
	case r.Queued:
		fmt.Fprintf(w, "queued %s (will be delivered when the API is reachable)\n", r.ActionID)
	}
	if r.Geofence != nil {
		fmt.Fprintf(w, "geofence: %s\n", r.Geofence.Message())
	} else if r.GeofenceStatus == actions.GeofenceNotConfigured {
		fmt.Fprintln(w, "geofence: not configured")
	}
}
