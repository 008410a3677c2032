package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/events/publisher"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/registry"
	"github.com/Adithya-Monish-Kumar-K/tag-search/internal/tagindex"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tag-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	csvPath := flag.String("csv", "", "CSV file of id,tag,tag,... rows (defaults to loader.csvPath)")
	publish := flag.Bool("publish", false, "publish records as tag events to kafka instead of loading locally")
	query := flag.String("query", "", "comma-separated tags to rank after a local load")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	path := *csvPath
	if path == "" {
		path = cfg.Loader.CSVPath
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no CSV file: pass -csv or set loader.csvPath")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := loader.OpenCSV(path, cfg.Loader.SkipHeader)
	if err != nil {
		slog.Error("failed to open csv", "error", err)
		os.Exit(1)
	}
	defer src.Close()
	opts := loader.Options{Strict: cfg.Loader.Strict, ProgressEvery: 1000}

	if *publish {
		if err := publishCSV(ctx, cfg, src, opts); err != nil {
			slog.Error("publish failed", "error", err)
			os.Exit(1)
		}
		return
	}

	reg := registry.New(tagindex.New(), nil, metrics.NewUnregistered())
	stats, err := loader.Load(ctx, src, loader.NewIndexSink(reg), opts)
	if err != nil {
		slog.Error("load failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d records (%d malformed): %d entities, %d tags attached\n",
		stats.Records, stats.Malformed, stats.EntitiesCreated, stats.TagsAttached)
	fmt.Printf("All tags: %s\n", strings.Join(reg.AllTags(), ", "))

	if *query == "" {
		return
	}
	result, err := reg.Rank(ctx, strings.Split(*query, ","))
	if err != nil {
		slog.Error("rank failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("\nRanking for [%s]:\n", strings.Join(result.Query, ", "))
	if len(result.Results) == 0 {
		fmt.Println("  no matching entities")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ENTITY\tOVERLAP\tMATCHED TAGS")
	for _, s := range result.Results {
		matched := tagindex.MatchedTags(reg.TagsOf(s.EntityID), result.Query)
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", s.EntityID, s.Overlap, strings.Join(matched, ", "))
	}
	tw.Flush()
}

func publishCSV(ctx context.Context, cfg *config.Config, src loader.Source, opts loader.Options) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is empty")
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.TagEvents)
	defer producer.Close()

	stats, err := loader.Load(ctx, src, publisher.New(producer, resilience.RetryConfig{}), opts)
	if err != nil {
		return err
	}
	fmt.Printf("Published %d records (%d malformed) to %s\n", stats.Records, stats.Malformed, cfg.Kafka.TagEvents)
	return nil
}
