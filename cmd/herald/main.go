package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"herald/internal/broker"
	"herald/internal/config"
	"herald/internal/constants"
	"herald/internal/envelope"
	"herald/internal/logger"
	"herald/internal/trigger"
	"herald/pkg/bootstrap"
	"herald/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "herald",
		Short: "Contact notification delivery pipeline",
		Long:  "herald forwards queued contact messages to a webhook with at-least-once delivery",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (defaults to CONFIG_FILE, optional)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(lambdaCmd())
	rootCmd.AddCommand(enqueueCmd())
	rootCmd.AddCommand(dlqCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigFile() string {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	return configFile
}

func setup(load func(string) (*config.Config, error)) (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	cfg, err := load(resolveConfigFile())
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the queue and deliver notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(config.LoadConfig)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting herald worker")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, true); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			runErr := app.Run(ctx)
			if err := app.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.ErrorwCtx(ctx, "Shutdown error", "error", err)
			}
			if runErr != nil {
				log.ErrorwCtx(ctx, "Application error", "error", runErr)
				return runErr
			}
			return nil
		},
	}
}

func lambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function triggered by SQS or SNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(config.LoadConfig)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := context.Background()
			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, false); err != nil {
				log.Fatalf("Failed to initialize application: %v", err)
			}

			handler := trigger.NewHandler(app.consumer, constants.ServiceName, log)
			log.InfowCtx(ctx, "Starting herald lambda", "ingress", cfg.Ingress.Type)

			switch cfg.Ingress.Type {
			case constants.TransportSNS:
				lambda.Start(handler.HandleSNS)
			default:
				lambda.Start(handler.HandleSQS)
			}
			return nil
		},
	}
}

func enqueueCmd() *cobra.Command {
	var msg envelope.ContactMessage

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Send a contact message to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(config.LoadQueueConfig)
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Queue.InMemory() {
				return fmt.Errorf("enqueue needs a real queue, the in-memory queue lives inside the worker")
			}

			base := bootstrap.NewBase(cfg, log)
			if err := base.InitQueue(cmd.Context()); err != nil {
				return err
			}

			id, err := broker.NewSQSProducer(base.Queue, cfg.Queue, log).Publish(cmd.Context(), msg)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().StringVar(&msg.Name, "name", "", "Sender name")
	cmd.Flags().StringVar(&msg.Email, "email", "", "Sender email")
	cmd.Flags().StringVar(&msg.Message, "message", "", "Message text")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("message")

	return cmd
}

func dlqCmd() *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect the dead-letter queue",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Print dead-lettered records without consuming them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(config.LoadQueueConfig)
			if err != nil {
				return err
			}
			defer log.Sync()

			if cfg.Queue.DeadLetterURL == "" {
				return fmt.Errorf("queue.dead_letter_url is not configured")
			}

			base := bootstrap.NewBase(cfg, log)
			if err := base.InitQueue(cmd.Context()); err != nil {
				return err
			}

			entries, err := broker.NewDeadLetterReader(base.DeadLetterQueue, cfg.Queue.DeadLetterURL, log).Peek(cmd.Context(), limit)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		},
	}
	list.Flags().IntVar(&limit, "limit", constants.DefaultDeadLetterLimit, "Maximum number of records (1-10)")

	dlq.AddCommand(list)
	return dlq
}
