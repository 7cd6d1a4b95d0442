package main

import (
	"fmt"
	"os"

	_ "blagajna/api/swagger" // swagger docs
	"blagajna/internal/authority"
	"blagajna/internal/certstore"
	"blagajna/internal/config"
	"blagajna/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "blagajna",
	Short: "Fiscal cash register backend",
	Long: `blagajna certifies invoices with the tax Authority.

Every invoice is numbered per electronic device, protected with a ZOI code computed
from the fiscal certificate, submitted over mutual TLS as a signed token and stored
together with the confirmation code (EOR) returned by the Authority.

Configuration is read from the environment and configs/.env.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// @title           Blagajna Fiscal API
// @version         1.0
// @description     Certifies invoices with the tax Authority and keeps the per-device invoice ledger.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", "configs/.env", "Path to the .env file")
}

// app holds what every command needs: configuration, the fiscal identity and the
// Authority client.
type app struct {
	cfg       *config.Config
	identity  *certstore.Store
	authority *authority.Client
	log       zerolog.Logger
}

func bootstrap(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "No %s file found or error loading it\n", envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	log := logger.WithComponent("bootstrap")

	identity, err := certstore.Load(cfg.CertBundle, cfg.CertPassword)
	if err != nil {
		return nil, err
	}
	id := identity.Identity()
	log.Info().
		Str("serial", id.Serial).
		Str("subject", id.SubjectName).
		Str("issuer", id.IssuerName).
		Msg("fiscal certificate loaded")

	roots, err := certstore.LoadCertPool(cfg.TrustAnchors...)
	if err != nil {
		return nil, err
	}
	authorityCerts, err := certstore.LoadCertificates(cfg.AuthorityCert)
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	client, err := authority.NewClient(identity, authority.Config{
		BaseURL:       cfg.AuthorityURL,
		Timeout:       cfg.AuthorityTimeout,
		RootCAs:       roots,
		AuthorityCert: authorityCerts[0],
		Location:      loc,
	}, logger.WithComponent("authority"))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		identity:  identity,
		authority: client,
		log:       log,
	}, nil
}
