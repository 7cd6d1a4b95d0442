package main

import (
	"context"
	"fmt"
	"time"

	"blagajna/internal/config"
	"blagajna/internal/database"
	"blagajna/internal/logger"
	"blagajna/internal/repository"
	"blagajna/internal/service"

	"github.com/spf13/cobra"
)

var echoCmd = &cobra.Command{
	Use:   "echo [message]",
	Short: "Check connectivity and certificates against the Authority",
	Long: `Send a message to the Authority's echo endpoint over mutual TLS. Nothing is
signed or stored; a matching answer proves the certificate bundle, the trust
anchors and the network path are in order.`,
	Example: `  blagajna echo
  blagajna echo "hello" --env-file configs/test.env`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEcho,
}

var registerPremiseCmd = &cobra.Command{
	Use:   "register-premise",
	Short: "Register a business premise with the Authority",
	Long: `Register the business premise described in a YAML file. The premise must be
registered before any invoice is issued from it.`,
	Example: `  blagajna register-premise --file configs/premise.yaml`,
	RunE:    runRegisterPremise,
}

func init() {
	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(registerPremiseCmd)

	registerPremiseCmd.Flags().String("file", "configs/premise.yaml", "Premise description (YAML)")
}

func runEcho(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	message := "ping"
	if len(args) == 1 {
		message = args[0]
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.AuthorityTimeout)
	defer cancel()

	start := time.Now()
	if err := a.authority.Echo(ctx, message); err != nil {
		return err
	}

	a.log.Info().Dur("elapsed", time.Since(start)).Msg("authority echo succeeded")
	fmt.Fprintf(cmd.OutOrStdout(), "echo ok: %s (%s)\n", message, time.Since(start).Round(time.Millisecond))
	return nil
}

func runRegisterPremise(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("file")
	premise, err := config.LoadPremise(path)
	if err != nil {
		return err
	}

	db, err := database.NewConnection(a.cfg.DSN(), logger.WithComponent("database"))
	if err != nil {
		return err
	}

	svc := service.NewPremiseService(
		repository.NewPremiseRepository(db),
		repository.NewAuditRepository(db),
		repository.NewTransactionManager(db),
		a.authority,
		logger.WithComponent("premises"),
	)

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.AuthorityTimeout)
	defer cancel()

	record, err := svc.Register(ctx, "", premise)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "premise %s registered (valid from %s)\n", record.BusinessPremiseID, record.ValidityDate)
	return nil
}
