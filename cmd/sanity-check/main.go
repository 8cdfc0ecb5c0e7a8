package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/maltedev/alkoteka-scraper/internal/models"
	"github.com/maltedev/alkoteka-scraper/pkg/logger"
)

const maxReported = 20

func main() {
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [result.json]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logger.New(*logLevel, "text")

	path := "result.json"
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Error("result file not found", "file", path)
		} else {
			log.Error("failed to read result file", "file", path, "error", err)
		}
		os.Exit(1)
	}

	report, err := models.CheckResults(data)
	if err != nil {
		log.Error("invalid result file", "file", path, "error", err)
		os.Exit(1)
	}

	log.Info("loaded records", "file", path, "total", report.Total)
	if report.Total == 0 {
		log.Warn("result file is empty")
		return
	}

	if report.OK() {
		log.Info("sanity check passed", "records", report.Total)
		return
	}

	indexes := make([]int, 0, len(report.Problems))
	for i := range report.Problems {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for n, i := range indexes {
		if n == maxReported {
			log.Error("further records with problems omitted", "count", len(indexes)-maxReported)
			break
		}
		log.Error("record failed schema check", "index", i, "problems", report.Problems[i])
	}
	log.Error("sanity check failed", "bad_records", len(indexes), "total", report.Total)
	os.Exit(1)
}
