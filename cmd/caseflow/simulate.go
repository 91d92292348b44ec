package main

import (
	"github.com/spf13/cobra"

	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/analysissim"
	"github.com/Megagig/pharmacy-monorepo-sub016/internal/platform/auth"
)

func simulateCmd() *cobra.Command {
	var (
		port            string
		processingPolls int
		failing         []string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-memory analysis service for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			opts := []analysissim.Option{
				analysissim.WithLogger(logger),
				analysissim.WithProcessingPolls(processingPolls),
				analysissim.WithFailingPatients(failing...),
			}
			if cfg.ServiceTokenSecret != "" {
				opts = append(opts, analysissim.WithServiceAuth(auth.JWTConfig{
					Issuer:     cfg.ServiceTokenIssuer,
					Audience:   cfg.ServiceTokenAudience,
					SigningKey: []byte(cfg.ServiceTokenSecret),
				}))
			}

			simCfg := *cfg
			simCfg.Port = port
			simCfg.TLSEnabled = false
			return runHTTP(cmd.Context(), analysissim.New(opts...).Echo(), &simCfg, logger)
		},
	}
	cmd.Flags().StringVar(&port, "port", "8090", "Port to listen on")
	cmd.Flags().IntVar(&processingPolls, "processing-polls", analysissim.DefaultProcessingPolls, "Polls answered with processing before a case completes")
	cmd.Flags().StringSliceVar(&failing, "fail-patient", nil, "Patient ids whose analyses fail")
	return cmd
}
