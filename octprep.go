// Package octprep prepares a labeled retinal-OCT image dataset for
// machine-learning consumption.
//
// The pipeline has three stages. The manifest is loaded and reconciled
// against the source image tree, deleting files the manifest does not
// know about. Each disease class is then partitioned into train/val/test
// subsets at the patient level, so that no patient's images cross subset
// boundaries. Finally every surviving image is geometrically normalized
// (square-padding, optional center-cropping, resizing) and re-encoded
// into a split/disease output tree.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		octprep "github.com/menta2k/oct-prep"
//		"github.com/menta2k/oct-prep/internal/config"
//	)
//
//	func main() {
//		cfg := config.Default()
//		cfg.Dataset.SourceRoot = "data/raw"
//		cfg.Dataset.MetadataPath = "data/metadata.csv"
//		cfg.Output.OutputRoot = "data/prepared"
//
//		report, err := octprep.New(cfg).Run()
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("processed %d images", report.TotalProcessed())
//	}
//
// The package consists of four main components:
//
// 1. Metadata (pkg/metadata): manifest loading and source-tree cleaning
// 2. Split (pkg/split): patient-grouped train/val/test partitioning
// 3. Transform (pkg/transform): pure geometric normalization functions
// 4. Processing (pkg/processing): per-image decode/transform/encode
//
// Splitting is seedable: set Split.RandomSeed in the configuration and
// two runs over identical input produce identical split assignments and
// identical output file sets. Without a seed, assignments differ between
// runs; that is a documented property of the tool, not a bug.
package octprep

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/menta2k/oct-prep/internal/config"
	"github.com/menta2k/oct-prep/internal/utils"
	"github.com/menta2k/oct-prep/pkg/metadata"
	"github.com/menta2k/oct-prep/pkg/processing"
	"github.com/menta2k/oct-prep/pkg/split"
	"github.com/menta2k/oct-prep/pkg/transform"
	"github.com/menta2k/oct-prep/pkg/types"
)

// Version of the dataset preparation library
const Version = "1.0.0"

// ReportFileName is the summary artifact written into the output root
const ReportFileName = "report.json"

// Preparer drives the full dataset preparation pipeline
type Preparer struct {
	cfg       *config.Config
	processor *processing.Processor

	// ShowProgress renders a progress bar over the image loop
	ShowProgress bool
}

// New creates a Preparer for the given configuration
func New(cfg *config.Config) *Preparer {
	return &Preparer{
		cfg:          cfg,
		processor:    processing.NewProcessor(),
		ShowProgress: true,
	}
}

// Run executes the pipeline end to end and returns the run report.
// Configuration and metadata problems abort before anything is written
// or deleted; individual image failures are collected in the report and
// never stop the batch.
func (p *Preparer) Run() (*types.Report, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ratios := split.Ratios{
		Train: p.cfg.TrainRatio(),
		Val:   p.cfg.Split.ValRatio,
		Test:  p.cfg.Split.TestRatio,
	}
	if err := ratios.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loaded, err := metadata.Load(p.cfg.Dataset.MetadataPath)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded %d records, dropped %d with invalid sex", len(loaded.Records), loaded.Dropped)

	cleaned, err := metadata.Clean(p.cfg.Dataset.SourceRoot, loaded.Records, p.cfg.Dataset.DryRun)
	if err != nil {
		return nil, err
	}

	report := &types.Report{
		RecordsLoaded:  len(loaded.Records) + loaded.Dropped,
		RecordsDropped: loaded.Dropped + cleaned.MissingFiles,
		OrphansDeleted: cleaned.Deleted,
		Seed:           p.cfg.Split.RandomSeed,
	}

	rng := p.newRand()

	groups, labels := split.GroupByDisease(cleaned.Records)
	var assignments []types.Assignment
	total := 0
	for _, label := range labels {
		assignment, ok := split.Partition(label, groups[label], ratios, p.cfg.Split.MinPatientsPerClass, rng)
		if !ok {
			patients := len(split.DistinctPatients(groups[label]))
			log.Printf("skipping class %s: %d distinct patients, minimum is %d",
				label, patients, p.cfg.Split.MinPatientsPerClass)
			report.SkippedClasses = append(report.SkippedClasses, types.ClassSkip{
				Disease:  label,
				Patients: patients,
				Minimum:  p.cfg.Split.MinPatientsPerClass,
			})
			continue
		}
		assignments = append(assignments, assignment)
		for _, s := range types.Splits() {
			total += len(assignment.Records(s))
		}
	}

	// All output directories exist before the first image is written
	if err := utils.EnsureDir(p.cfg.Output.OutputRoot); err != nil {
		return nil, fmt.Errorf("failed to create output root %s: %w", p.cfg.Output.OutputRoot, err)
	}
	for _, assignment := range assignments {
		for _, s := range types.Splits() {
			dir := filepath.Join(p.cfg.Output.OutputRoot, string(s), assignment.Disease)
			if err := utils.EnsureDir(dir); err != nil {
				return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
	}

	transformOpts := transform.Options{
		Pad:             p.cfg.Transform.EnablePadding,
		Crop:            p.cfg.Transform.EnableCrop,
		CropRatio:       p.cfg.Transform.CropRatio,
		Resize:          p.cfg.Transform.EnableResize,
		TargetDimension: p.cfg.Transform.TargetDimension,
	}
	encodeOpts := processing.EncodeOptions{
		Format:   p.cfg.Output.Format,
		Quality:  p.cfg.Output.Quality,
		Lossless: p.cfg.Output.Lossless,
	}
	ext := outputExtension(p.cfg.Output.Format)

	var bar *progressbar.ProgressBar
	if p.ShowProgress && total > 0 {
		bar = progressbar.Default(int64(total), "processing")
	}

	for _, assignment := range assignments {
		for _, s := range types.Splits() {
			for _, rec := range assignment.Records(s) {
				if bar != nil {
					_ = bar.Add(1)
				}

				src := cleaned.Paths[rec.FileName]
				dst := filepath.Join(p.cfg.Output.OutputRoot, string(s), assignment.Disease, rec.FileName+"."+ext)

				if err := p.processor.ProcessFile(src, dst, transformOpts, encodeOpts); err != nil {
					log.Printf("%v, skipping file", err)
					report.Failures = append(report.Failures, types.RecordFailure{
						FileName: rec.FileName,
						Disease:  assignment.Disease,
						Split:    s,
						Reason:   err.Error(),
					})
					continue
				}

				report.AddProcessed(assignment.Disease, s)
			}
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}

	if err := p.writeReport(report); err != nil {
		log.Printf("failed to write run report: %v", err)
	}

	return report, nil
}

func (p *Preparer) newRand() *rand.Rand {
	if seed := p.cfg.Split.RandomSeed; seed != nil {
		return rand.New(rand.NewSource(*seed))
	}
	log.Println("no random seed configured; split assignments will differ between runs")
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (p *Preparer) writeReport(report *types.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.cfg.Output.OutputRoot, ReportFileName), data, 0644)
}

// outputExtension normalizes a configured format to a file extension
func outputExtension(format string) string {
	if format == "jpeg" {
		return "jpg"
	}
	return format
}
