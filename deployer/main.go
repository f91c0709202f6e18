package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/shruggr/ordsite/chunk"
	"github.com/shruggr/ordsite/deploy"
	"github.com/shruggr/ordsite/lib"
)

func init() {
	godotenv.Load(".env")
}

func main() {
	var cfg deploy.Config
	flag.StringVar(&cfg.Root, "root", ".", "build output directory to deploy")
	flag.StringVar(&cfg.RecordPath, "record", "ordsite.json", "deployment record file")
	flag.StringVar(&cfg.App, "app", "", "application name for the version chain")
	flag.StringVar(&cfg.Version, "version", "", "version tag for this deployment")
	flag.StringVar(&cfg.Description, "message", "", "deployment description")
	flag.StringVar(&cfg.ContentBase, "content-base", "/content", "URL prefix rewritten references point at")
	flag.Int64Var(&cfg.ChunkThreshold, "chunk-threshold", chunk.DefaultThreshold, "files larger than this are chunked")
	flag.Int64Var(&cfg.ChunkSize, "chunk-size", 0, "nominal chunk size (defaults to the threshold)")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "measure fees without broadcasting anything")
	flag.Parse()

	if cfg.App == "" || cfg.Version == "" {
		flag.Usage()
		log.Fatal("[DEPLOYER] -app and -version are required")
	}

	wifStr := os.Getenv("ORDSITE_WIF")
	if wifStr == "" {
		log.Fatal("[DEPLOYER] ORDSITE_WIF not set")
	}
	wallet, err := lib.NewWallet(wifStr)
	if err != nil {
		log.Fatalf("[DEPLOYER] bad key: %v", err)
	}
	indexer, err := lib.NewHTTPIndexer(os.Getenv("JUNGLEBUS"), os.Getenv("ORDINALS"))
	if err != nil {
		log.Fatal(err)
	}

	d, err := deploy.New(wallet, indexer, cfg).Deploy(context.Background())
	if err != nil {
		var verr *lib.VersionExistsError
		if errors.As(err, &verr) {
			log.Fatalf("[DEPLOYER] version %s already deployed, try %s", verr.Version, verr.Suggested)
		}
		log.Fatalf("[DEPLOYER] deploy failed: %v", err)
	}
	log.Printf("[DEPLOYER] %s@%s: %d files (%d chunked), %d bytes, %d sat in fees",
		cfg.App, cfg.Version, len(d.Files), len(d.Chunked), d.TotalBytes, d.TotalFees)
}
