// Package metadata loads the dataset manifest and reconciles it with the
// source image tree. The manifest is the source of truth: after cleaning,
// every image file under the source tree is backed by a retained manifest
// row, and files without one are deleted.
package metadata

import (
	"bytes"
	"encoding/csv"
	"log"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/menta2k/oct-prep/internal/utils"
	"github.com/menta2k/oct-prep/pkg/types"
)

// invalidSex is the sentinel value marking rows with unknown sex. Such
// rows are excluded outright: downstream analyses treat sex as a
// confounder and need it well-defined.
const invalidSex = "0"

var requiredColumns = []string{
	"file_name",
	"disease",
	"subcategory",
	"condition",
	"patient_id",
	"eye",
	"sex",
	"year",
	"image_width",
	"image_height",
}

// LoadResult holds the parsed manifest rows that survived filtering
type LoadResult struct {
	Records []types.ImageRecord

	// Dropped counts rows removed for carrying the invalid-sex sentinel
	Dropped int
}

// Load parses the CSV manifest at path into ImageRecords and drops rows
// whose sex field holds the invalid sentinel. A missing required column
// or an unparseable row makes the whole manifest untrustworthy and is a
// fatal error.
func Load(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata file %s", path)
	}

	if err := checkColumns(data); err != nil {
		return nil, err
	}

	var rows []*types.ImageRecord
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, errors.Wrapf(err, "parsing metadata file %s", path)
	}

	result := &LoadResult{}
	for _, row := range rows {
		if row.Sex == invalidSex {
			result.Dropped++
			continue
		}
		result.Records = append(result.Records, *row)
	}

	return result, nil
}

func checkColumns(data []byte) error {
	header, err := csv.NewReader(bytes.NewReader(data)).Read()
	if err != nil {
		return errors.Wrap(err, "reading metadata header")
	}

	present := make(map[string]bool, len(header))
	for _, col := range header {
		present[col] = true
	}

	for _, col := range requiredColumns {
		if !present[col] {
			return errors.Errorf("metadata file missing required column %q", col)
		}
	}

	return nil
}

// CleanResult describes the outcome of reconciling manifest and
// filesystem
type CleanResult struct {
	// Records that are backed by an existing source image
	Records []types.ImageRecord

	// Paths maps a record's FileName to its source image path
	Paths map[string]string

	// Deleted lists orphan files removed (or, in dry-run, found)
	Deleted []string

	// MissingDirs lists disease directories named by the manifest that
	// do not exist under the source root
	MissingDirs []string

	// MissingFiles counts records whose image file was not found
	MissingFiles int
}

// Clean reconciles records against the source tree at sourceRoot, which
// holds one subdirectory per disease label. Files whose base name is not
// in the retained record set are deleted; every deletion is logged with
// its full path. Deletion is one-way and has no undo, so dryRun reports
// what would be removed without touching anything.
//
// A disease directory named by the manifest but absent on disk is
// reported and that class's records are dropped; the other classes are
// still processed.
func Clean(sourceRoot string, records []types.ImageRecord, dryRun bool) (*CleanResult, error) {
	if !utils.DirExists(sourceRoot) {
		return nil, errors.Errorf("source root %s does not exist", sourceRoot)
	}

	byDisease, labels := groupByDisease(records)

	result := &CleanResult{Paths: make(map[string]string)}

	for _, label := range labels {
		classDir := filepath.Join(sourceRoot, label)
		if !utils.DirExists(classDir) {
			log.Printf("disease directory %s named by metadata does not exist, skipping class %s", classDir, label)
			result.MissingDirs = append(result.MissingDirs, classDir)
			continue
		}

		retained := make(map[string]bool)
		for _, rec := range byDisease[label] {
			retained[rec.FileName] = true
		}

		files, err := utils.ListImageFiles(classDir)
		if err != nil {
			return nil, errors.Wrapf(err, "listing class directory %s", classDir)
		}

		for _, file := range files {
			if retained[utils.BaseName(file)] {
				continue
			}
			if dryRun {
				log.Printf("orphan file (dry run, kept): %s", file)
			} else {
				if err := os.Remove(file); err != nil {
					return nil, errors.Wrapf(err, "deleting orphan file %s", file)
				}
				log.Printf("deleted orphan file: %s", file)
			}
			result.Deleted = append(result.Deleted, file)
		}

		for _, rec := range byDisease[label] {
			path := utils.FindImageFile(classDir, rec.FileName)
			if path == "" {
				log.Printf("no image file for record %s in %s, dropping record", rec.FileName, classDir)
				result.MissingFiles++
				continue
			}
			result.Records = append(result.Records, rec)
			result.Paths[rec.FileName] = path
		}
	}

	return result, nil
}

func groupByDisease(records []types.ImageRecord) (map[string][]types.ImageRecord, []string) {
	byDisease := make(map[string][]types.ImageRecord)
	var labels []string
	for _, rec := range records {
		if _, ok := byDisease[rec.Disease]; !ok {
			labels = append(labels, rec.Disease)
		}
		byDisease[rec.Disease] = append(byDisease[rec.Disease], rec)
	}
	return byDisease, labels
}
