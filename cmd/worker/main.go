package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/mvergaray/facturador-api/internal/application/pipeline"
	"github.com/mvergaray/facturador-api/internal/infrastructure/postgres"
	infrasunat "github.com/mvergaray/facturador-api/internal/infrastructure/sunat"
	"github.com/mvergaray/facturador-api/internal/infrastructure/sunat/signer"
	"github.com/mvergaray/facturador-api/pkg/config"
	"github.com/mvergaray/facturador-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})

	workerID := pipeline.NewWorkerID()
	log.Info().
		Str("env", cfg.App.Env).
		Str("sunat_env", cfg.SUNAT.Env).
		Str("worker_id", workerID).
		Msg("iniciando worker de envío")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	docRepo := postgres.NewDocumentRepository(pool)
	jobRepo := postgres.NewJobRepository(pool)
	companyRepo := pipeline.NewCompanyDefaults(postgres.NewCompanyRepository(pool), cfg.SUNAT)
	txRunner := postgres.NewTxRunner(pool)

	xmlBuilder := infrasunat.NewXMLBuilderService()
	signerSvc := signer.NewDigitalSignatureService()
	billClient := infrasunat.NewSOAPBillClient()

	submitter := pipeline.NewSubmitter(companyRepo, xmlBuilder, signerSvc, billClient, log)
	scheduler := pipeline.NewScheduler(docRepo, jobRepo, txRunner, submitter, log, cfg.Worker, workerID)
	worker := pipeline.NewWorker(scheduler, cfg.Worker.PollInterval, log)

	// Bloquea hasta SIGINT/SIGTERM; el lote en curso termina antes de salir.
	worker.Run(ctx)

	log.Info().Msg("worker detenido")
}
