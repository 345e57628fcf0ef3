package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"marketplace_auth/internal/config"
	sl "marketplace_auth/internal/lib/logger"
	"marketplace_auth/internal/mailer"
	"marketplace_auth/internal/models"
	"marketplace_auth/internal/rabbitmq"
)

const prefetch = 10

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	log := sl.Setup(cfg.Env)

	log.Info("Starting mail_sender", slog.String("env", cfg.Env))

	if err := startConsumer(ctx, cfg, log); err != nil {
		os.Exit(1)
	}
}

func startConsumer(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to init rabbitmq", sl.Err(err))
		return err
	}
	defer r.Close()

	m := &mailer.Mailer{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
	}

	done := make(chan error, 1)

	go func() {
		done <- r.StartReading(ctx, prefetch, func(body []byte) error {
			var msg models.Message
			if err := json.Unmarshal(body, &msg); err != nil {
				log.Error("failed to unmarshal message", sl.Err(err))
				return err
			}

			if err := m.Send(msg); err != nil {
				log.Error("failed to send message",
					slog.String("purpose", msg.Purpose),
					sl.Err(err),
				)
				return err
			}

			log.Info("message sent successfully", slog.String("purpose", msg.Purpose))
			return nil
		})
	}()

	log.Info("consumer successfully started")

	select {
	case <-ctx.Done():
		log.Info("shutting down consumer...")
		<-done
	case err := <-done:
		if err != nil {
			log.Error("consumer stopped", sl.Err(err))
			return err
		}
		log.Info("consumer finished the work")
	}

	log.Info("service gracefully stopped")
	return nil
}
