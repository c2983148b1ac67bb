package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clinicflow/identity-service/internal/queue"
)

// NewMailerCmd creates the mailer subcommand.
func NewMailerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mailer",
		Short: "Consume password reset notices and deliver them",
		Long: `Consume password reset notices from RabbitMQ and hand them to the
outbox deliverer. Reconnects with exponential backoff until stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer := &queue.MailConsumer{
				URL:       cfg.RabbitMQURL,
				Queue:     cfg.MailQueue,
				Deliverer: queue.NewFileOutbox(cfg.MailOutboxPath),
				Logger:    logger,
			}
			logger.Info("mailer started", "queue", cfg.MailQueue, "outbox", cfg.MailOutboxPath)
			return consumer.Run(ctx)
		},
	}
}
