package main

import (
	"context"
	"flag"

	"github.com/joho/godotenv"

	"quantflow/config"
	"quantflow/internal/catalog"
	"quantflow/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	period := flag.Duration("period", 0, "period per output file (0 merges each directory whole)")
	start := flag.Uint64("start", 0, "window start, unix nanoseconds (0 = unbounded)")
	end := flag.Uint64("end", 0, "window end, unix nanoseconds (0 = unbounded)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		logger.WithError(err).Fatal("Failed to configure logging")
	}
	log := logger.WithComponent("consolidate")

	c := catalog.NewCatalog(cfg.Catalog.Root, cfg.Catalog.EnsureContiguous)
	if cfg.Catalog.S3.Enabled {
		archiver, err := catalog.NewS3Archiver(context.Background(), catalog.S3Config{
			Region:    cfg.Catalog.S3.Region,
			Bucket:    cfg.Catalog.S3.Bucket,
			Endpoint:  cfg.Catalog.S3.Endpoint,
			AccessKey: cfg.Catalog.S3.AccessKeyID,
			SecretKey: cfg.Catalog.S3.SecretAccessKey,
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to build archiver")
		}
		c = c.WithArchiver(archiver)
	}

	leaves, err := c.FindLeafDataDirectories()
	if err != nil {
		log.WithError(err).Fatal("Failed to list catalog directories")
	}
	for _, dir := range leaves {
		if *period > 0 {
			err = c.ConsolidateByPeriod(dir, uint64(period.Nanoseconds()), *start, *end)
		} else {
			err = c.ConsolidateDirectory(dir, *start, *end)
		}
		if err != nil {
			log.WithError(err).WithField("dir", dir).Fatal("Consolidation failed")
		}
	}
	log.WithField("directories", len(leaves)).Info("Consolidation complete")
}
