package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BearBump/FabTrack/config"
	"github.com/BearBump/FabTrack/internal/broker/kafka"
	"github.com/BearBump/FabTrack/internal/services/importer"
	"github.com/BearBump/FabTrack/internal/stages"
	"github.com/pkg/errors"
)

const defaultImportedTopic = "assembly.imported"

type publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type importFactories struct {
	newProducer func(cfg *config.Config) publisher
	now         func() time.Time
}

func defaultImportFactories() importFactories {
	return importFactories{
		newProducer: func(cfg *config.Config) publisher {
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		now: time.Now,
	}
}

type importOpts struct {
	file  string
	sheet string
}

type importReport struct {
	Assemblies int
	Batches    int
	RowErrors  []importer.RowError
}

// RunImport reads the workbook and publishes it in AssemblyImported batches.
func RunImport(ctx context.Context, cfg *config.Config, opts importOpts, f importFactories) (*importReport, error) {
	topic := cfg.Kafka.AssemblyImportedTopicName
	if topic == "" {
		topic = defaultImportedTopic
	}

	fh, err := os.Open(opts.file)
	if err != nil {
		return nil, errors.Wrap(err, "open import file")
	}
	defer fh.Close()

	items, rowErrs, err := importer.ReadWorkbook(fh, opts.sheet)
	if err != nil {
		return nil, err
	}
	for _, re := range rowErrs {
		slog.WarnContext(ctx, "import row skipped", "file", opts.file, "row", re.Row, "reason", re.Reason)
	}

	batches := importer.Batches(items, cfg.FabTrack.ImportBatchSize, filepath.Base(opts.file), f.now())
	if len(batches) == 0 {
		return &importReport{RowErrors: rowErrs}, nil
	}

	pub := f.newProducer(cfg)
	if c, ok := pub.(interface{ Close() error }); ok {
		defer func() { _ = c.Close() }()
	}

	for _, b := range batches {
		value, err := json.Marshal(b)
		if err != nil {
			return nil, errors.Wrap(err, "marshal batch")
		}
		if err := pub.Publish(ctx, topic, []byte(b.BatchID), value); err != nil {
			return nil, errors.Wrapf(err, "publish batch %s", b.BatchID)
		}
		slog.InfoContext(ctx, "import batch published", "batch_id", b.BatchID, "assemblies", len(b.Assemblies))
	}

	return &importReport{Assemblies: len(items), Batches: len(batches), RowErrors: rowErrs}, nil
}

// WriteTemplateFile writes an empty workbook a planner can fill in.
func WriteTemplateFile(path, pipeline string) error {
	p, ok := stages.ParsePipeline(pipeline)
	if !ok {
		return errors.Errorf("unknown pipeline %q", pipeline)
	}
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create template")
	}
	if err := importer.WriteTemplate(fh, p); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
