package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/config"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/domain/intake"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/analysissim"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/workflow"
)

const simulatedPollInterval = 100 * time.Millisecond

type analyzeOptions struct {
	patientID string
	file      string
	consent   bool
	simulate  bool
	timeout   time.Duration
}

func analyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one case through intake, submission and analysis and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if opts.file != "-" {
				f, err := os.Open(opts.file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runAnalyze(cmd.Context(), cfg, logger, opts, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.patientID, "patient", "", "Patient id")
	cmd.Flags().StringVar(&opts.file, "file", "-", "Case draft JSON file, - for stdin")
	cmd.Flags().BoolVar(&opts.consent, "consent", false, "Record that the patient consented to AI analysis")
	cmd.Flags().BoolVar(&opts.simulate, "simulate", false, "Use an in-process analysis service simulator")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Maximum time to wait for the analysis")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}

func runAnalyze(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts analyzeOptions, in io.Reader, out io.Writer) error {
	var draft intake.CaseDraft
	if err := json.NewDecoder(in).Decode(&draft); err != nil {
		return fmt.Errorf("decode case draft: %w", err)
	}
	draft.PatientID = opts.patientID
	if draft.Severity == "" {
		draft.Severity = intake.SeverityMild
	}
	if draft.Onset == "" {
		draft.Onset = intake.OnsetAcute
	}

	backend, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.close()

	baseURL := cfg.AnalysisBaseURL
	if opts.simulate {
		url, stop, err := startSimulator(logger)
		if err != nil {
			return err
		}
		defer stop()
		baseURL = url
		simCfg := *cfg
		simCfg.PollInterval = simulatedPollInterval
		simCfg.ServiceTokenSecret = ""
		cfg = &simCfg
	}

	client, err := newAnalysisClient(cfg, baseURL, logger)
	if err != nil {
		return err
	}
	ctrl := controllerFactory(cfg, client, backend.cache, logger)()
	defer ctrl.Close()

	if err := ctrl.SelectPatient(ctx, opts.patientID); err != nil {
		return err
	}
	if _, err := ctrl.Edit(func(d *intake.CaseDraft) { *d = draft.Clone() }, intake.AllFields...); err != nil {
		return err
	}
	if opts.consent {
		if err := ctrl.GrantConsent(); err != nil {
			return err
		}
	}

	switch err := ctrl.Submit(ctx); {
	case errors.Is(err, workflow.ErrConsentRequired):
		return errors.New("patient consent is required: rerun with --consent")
	case errors.Is(err, workflow.ErrInvalidDraft):
		return validationError(ctrl.Snapshot().Validation)
	case err != nil:
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := ctrl.Await(wctx); err != nil {
		return fmt.Errorf("waiting for analysis: %w", err)
	}

	snap := ctrl.Snapshot()
	if snap.Error != nil {
		return fmt.Errorf("%s failed: %s", snap.Error.Stage, snap.Error.Message)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Analysis)
}

func validationError(r intake.ValidationReport) error {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return fmt.Errorf("case draft is invalid: %s", strings.Join(msgs, "; "))
}

// startSimulator serves the analysis simulator on a loopback port and
// returns its base URL.
func startSimulator(logger zerolog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("listen for simulator: %w", err)
	}
	e := analysissim.New(analysissim.WithLogger(logger)).Echo()
	e.Listener = ln
	go func() {
		_ = e.Start("")
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = e.Shutdown(ctx)
	}
	return "http://" + ln.Addr().String(), stop, nil
}
