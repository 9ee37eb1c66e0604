package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kazilabs/mtihani/apps/api/echo"
	"github.com/kazilabs/mtihani/core"
	"github.com/kazilabs/mtihani/core/attempt"
	"github.com/kazilabs/mtihani/core/exam"
	"github.com/kazilabs/mtihani/core/paper"
	"github.com/kazilabs/mtihani/services/logger"
	"github.com/kazilabs/mtihani/storage/database"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {
	core.Conf = core.NewConfig(build)

	stdLogger := log.New(os.Stdout, core.Conf.AppName+" API : ", log.LstdFlags|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, core.Conf)
	logger.Enable(!core.Conf.Debug)

	validate, translator := core.NewValidator()

	clock := core.NewClock()

	// set up DB
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	enrRepo := database.NewEnrollmentRepository(db, logger)
	examRepo := database.NewExamRepository(db)
	attRepo := database.NewAttemptRepository(db)
	paperStore := database.NewPaperStore(db)

	examSvc := exam.NewService(examRepo, enrRepo, clock, logger)
	attemptSvc := attempt.NewService(attRepo, examRepo, enrRepo, clock, logger)
	resolver := paper.NewResolver(examRepo, enrRepo, paperStore, logger)
	sweeper := attempt.NewSweeper(attRepo, examRepo, clock, logger)

	// background safety sweep
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweeper(sweepCtx, sweeper, logger)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:    core.Conf.Server.Address(),
			ExamSvc:    examSvc,
			AttemptSvc: attemptSvc,
			Resolver:   resolver,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		stopSweep()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			logger.Error("stopping server", err)
		}
	}()

	app.Start()
}

func runSweeper(ctx context.Context, sweeper *attempt.Sweeper, logger core.Logger) {
	interval := core.Conf.Sweeper.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx); err != nil {
				logger.Error("running safety sweep", err)
			}
		}
	}
}
