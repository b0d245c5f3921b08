package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	octprep "github.com/menta2k/oct-prep"
	"github.com/menta2k/oct-prep/internal/config"
)

func main() {
	var configPath, writeConfigPath string
	var sourceRoot, metadataPath, outputRoot string
	var valRatio, testRatio, cropRatio float64
	var minPatients, targetDim, quality int
	var pad, crop, resize, dryRun, noProgress bool
	var format, seedStr string

	flag.StringVar(&configPath, "config", "", "optional JSON config file; flags override its values")
	flag.StringVar(&writeConfigPath, "write-config", "", "write the default configuration to this path and exit")

	flag.StringVar(&sourceRoot, "source", "", "source image tree, one subdirectory per disease label")
	flag.StringVar(&metadataPath, "metadata", "", "CSV manifest with one row per labeled image")
	flag.StringVar(&outputRoot, "out", "", "output root for the train/val/test tree")

	flag.Float64Var(&valRatio, "val-ratio", 0.15, "fraction of patients per class assigned to validation")
	flag.Float64Var(&testRatio, "test-ratio", 0.15, "fraction of patients per class assigned to test")
	flag.IntVar(&minPatients, "min-patients", 10, "minimum distinct patients a class needs; smaller classes are dropped")
	flag.StringVar(&seedStr, "seed", "", "random seed for reproducible splits (empty seeds from the clock)")

	flag.BoolVar(&pad, "pad", true, "square-pad images with black before other transforms")
	flag.BoolVar(&crop, "crop", false, "center-crop images by crop-ratio after padding")
	flag.Float64Var(&cropRatio, "crop-ratio", 1.0, "center-crop fraction of the padded dimensions (1.0 = no-op)")
	flag.BoolVar(&resize, "resize", true, "resize images to the target square dimension")
	flag.IntVar(&targetDim, "dim", 512, "target square dimension in pixels")

	flag.StringVar(&format, "format", "jpg", "output format: jpg|png|webp")
	flag.IntVar(&quality, "quality", 100, "output quality for jpg/webp (1-100)")
	flag.BoolVar(&dryRun, "dry-run", false, "report orphan files instead of deleting them")
	flag.BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	flag.Parse()

	if writeConfigPath != "" {
		if err := config.Default().SaveToFile(writeConfigPath); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote default configuration to %s", writeConfigPath)
		return
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	// Explicitly set flags win over config-file values
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "source":
			cfg.Dataset.SourceRoot = sourceRoot
		case "metadata":
			cfg.Dataset.MetadataPath = metadataPath
		case "out":
			cfg.Output.OutputRoot = outputRoot
		case "val-ratio":
			cfg.Split.ValRatio = valRatio
		case "test-ratio":
			cfg.Split.TestRatio = testRatio
		case "min-patients":
			cfg.Split.MinPatientsPerClass = minPatients
		case "seed":
			seed, err := strconv.ParseInt(seedStr, 10, 64)
			if err != nil {
				log.Fatalf("invalid -seed value %q: %v", seedStr, err)
			}
			cfg.Split.RandomSeed = &seed
		case "pad":
			cfg.Transform.EnablePadding = pad
		case "crop":
			cfg.Transform.EnableCrop = crop
		case "crop-ratio":
			cfg.Transform.CropRatio = cropRatio
		case "resize":
			cfg.Transform.EnableResize = resize
		case "dim":
			cfg.Transform.TargetDimension = targetDim
		case "format":
			cfg.Output.Format = format
		case "quality":
			cfg.Output.Quality = quality
		case "dry-run":
			cfg.Dataset.DryRun = dryRun
		}
	})

	if cfg.Dataset.SourceRoot == "" || cfg.Dataset.MetadataPath == "" || cfg.Output.OutputRoot == "" {
		flag.PrintDefaults()
		os.Exit(1)
	}

	preparer := octprep.New(cfg)
	preparer.ShowProgress = !noProgress

	report, err := preparer.Run()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("records loaded:   %d (%d dropped)\n", report.RecordsLoaded, report.RecordsDropped)
	fmt.Printf("orphans deleted:  %d\n", len(report.OrphansDeleted))
	fmt.Printf("images processed: %d\n", report.TotalProcessed())

	if len(report.SkippedClasses) > 0 {
		fmt.Println("skipped classes (too few patients):")
		for _, skip := range report.SkippedClasses {
			fmt.Printf("  %s: %d patients, minimum %d\n", skip.Disease, skip.Patients, skip.Minimum)
		}
	}

	if len(report.Failures) > 0 {
		fmt.Printf("failed images:    %d\n", len(report.Failures))
		for _, failure := range report.Failures {
			fmt.Printf("  %s/%s/%s: %s\n", failure.Split, failure.Disease, failure.FileName, failure.Reason)
		}
	}
}
