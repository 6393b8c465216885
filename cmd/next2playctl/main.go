package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"next2play/internal/clients/hltb"
	"next2play/internal/config"
	"next2play/internal/images"
	"next2play/internal/services"
	"next2play/internal/storage/jsonfile"
	"next2play/internal/storage/uploads"
)

// env is everything a maintenance command may touch, built from the server config.
type env struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *jsonfile.Storage
	uploads   *uploads.Uploads
	processor images.ImageProcessor
	service   *services.GameService
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config yaml file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := setup(*configPath, *verbose)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "refetch-images":
		err = refetchImages(ctx, e)
	case "optimize-images":
		err = optimizeImages(ctx, e)
	case "fix-ids":
		err = fixIDs(e)
	case "import-csv":
		if len(args) < 2 {
			fmt.Println("Usage: next2playctl import-csv <file.csv>")
			os.Exit(1)
		}
		err = importCSV(ctx, e, args[1])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(configPath string, verbose bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := jsonfile.New(cfg.DataFile)
	if err != nil {
		return nil, err
	}

	uploadsStorage, err := uploads.NewUploads(cfg.UploadsPath)
	if err != nil {
		return nil, err
	}

	processor := images.NewProcessor(cfg.Images)
	cache := images.NewCache(uploadsStorage, processor, images.Options{
		URLPrefix: cfg.ImagesURLPrefix,
		UserAgent: cfg.Clients.HLTB.UserAgent,
		Timeout:   cfg.Images.FetchTimeout,
	}, log)

	return &env{
		cfg:       cfg,
		log:       log,
		store:     store,
		uploads:   uploadsStorage,
		processor: processor,
		service:   services.NewGameService(store, hltb.New(cfg.Clients.HLTB, log), cache, log),
	}, nil
}

func printUsage() {
	fmt.Println("Usage: next2playctl [-config path] [-v] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  refetch-images       download every cover again")
	fmt.Println("  optimize-images      resize and recompress files in the image directory")
	fmt.Println("  fix-ids              store every game id as a number")
	fmt.Println("  import-csv <file>    add games from the first column of a CSV file")
}
