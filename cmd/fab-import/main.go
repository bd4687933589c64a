package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/FabTrack/config"
	"github.com/BearBump/FabTrack/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logger.Setup(cfg.FabTrack.LogLevel, cfg.FabTrack.LogFormat)

	if out := os.Getenv("templateOut"); out != "" {
		if err := WriteTemplateFile(out, os.Getenv("templatePipeline")); err != nil {
			panic(err)
		}
		slog.Info("import template written", "path", out)
		return
	}

	file := os.Getenv("importFile")
	if file == "" {
		panic("importFile env var is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep, err := RunImport(ctx, cfg, importOpts{file: file, sheet: os.Getenv("importSheet")}, defaultImportFactories())
	if err != nil {
		panic(err)
	}
	slog.Info("import finished",
		"assemblies", rep.Assemblies, "batches", rep.Batches, "row_errors", len(rep.RowErrors))
}
