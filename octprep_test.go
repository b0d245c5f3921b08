package octprep

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/menta2k/oct-prep/internal/config"
	"github.com/menta2k/oct-prep/pkg/types"
)

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 64, 255})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// fixture builds a source tree plus matching manifest under a temp dir
type fixture struct {
	dir      string
	manifest strings.Builder
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{dir: t.TempDir()}
	f.manifest.WriteString("file_name,disease,subcategory,condition,patient_id,eye,sex,year,image_width,image_height\n")
	return f
}

func (f *fixture) sourceRoot() string { return filepath.Join(f.dir, "source") }
func (f *fixture) outputRoot() string { return filepath.Join(f.dir, "output") }

func (f *fixture) addClass(t *testing.T, disease string, patients, imagesPerPatient, width, height int) {
	t.Helper()
	for p := 0; p < patients; p++ {
		for i := 0; i < imagesPerPatient; i++ {
			name := fmt.Sprintf("%s-p%02d-%d", disease, p, i)
			writePNG(t, filepath.Join(f.sourceRoot(), disease, name+".png"), width, height)
			f.manifest.WriteString(fmt.Sprintf("%s,%s,sub,cond,%s-p%02d,od,1,2020,%d,%d\n",
				name, disease, disease, p, width, height))
		}
	}
}

func (f *fixture) writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(f.dir, "metadata.csv")
	if err := os.WriteFile(path, []byte(f.manifest.String()), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) config(t *testing.T, seed int64) *config.Config {
	cfg := config.Default()
	cfg.Dataset.SourceRoot = f.sourceRoot()
	cfg.Dataset.MetadataPath = f.writeManifest(t)
	cfg.Output.OutputRoot = f.outputRoot()
	cfg.Split.RandomSeed = &seed
	cfg.Transform.EnableResize = false
	return cfg
}

func runQuiet(t *testing.T, cfg *config.Config) *types.Report {
	t.Helper()
	p := New(cfg)
	p.ShowProgress = false
	report, err := p.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return report
}

// listOutputs returns output image paths relative to the output root
func listOutputs(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) != ".json" {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(files)
	return files
}

func TestRunExcludesSmallClasses(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 15, 1, 40, 30)
	f.addClass(t, "dme", 8, 1, 40, 30)
	f.addClass(t, "drusen", 20, 1, 40, 30)

	report := runQuiet(t, f.config(t, 1))

	if len(report.SkippedClasses) != 1 || report.SkippedClasses[0].Disease != "dme" {
		t.Fatalf("Expected dme to be the single skipped class, got %+v", report.SkippedClasses)
	}

	for _, s := range types.Splits() {
		if dir := filepath.Join(f.outputRoot(), string(s), "dme"); dirExists(dir) {
			t.Errorf("Expected no %s directory for excluded class", dir)
		}
	}

	if report.TotalProcessed() != 35 {
		t.Errorf("Expected 35 processed images, got %d", report.TotalProcessed())
	}
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func TestRunKeepsPatientsInOneSplit(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 12, 3, 40, 30)

	runQuiet(t, f.config(t, 3))

	patientSplits := make(map[string]map[string]bool)
	for _, s := range types.Splits() {
		dir := filepath.Join(f.outputRoot(), string(s), "cnv")
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			// file names look like cnv-p07-2.jpg
			parts := strings.Split(entry.Name(), "-")
			if len(parts) < 3 {
				t.Fatalf("Unexpected output name %s", entry.Name())
			}
			patient := parts[1]
			if patientSplits[patient] == nil {
				patientSplits[patient] = make(map[string]bool)
			}
			patientSplits[patient][string(s)] = true
		}
	}

	if len(patientSplits) != 12 {
		t.Errorf("Expected 12 patients in output, got %d", len(patientSplits))
	}
	for patient, splits := range patientSplits {
		if len(splits) != 1 {
			t.Errorf("Patient %s appears in %d splits: %v", patient, len(splits), splits)
		}
	}
}

func TestRunDeterministicWithSeed(t *testing.T) {
	build := func() (*fixture, *config.Config) {
		f := newFixture(t)
		f.addClass(t, "cnv", 14, 2, 40, 30)
		f.addClass(t, "drusen", 11, 2, 40, 30)
		return f, f.config(t, 99)
	}

	f1, cfg1 := build()
	runQuiet(t, cfg1)
	first := listOutputs(t, f1.outputRoot())

	f2, cfg2 := build()
	runQuiet(t, cfg2)
	second := listOutputs(t, f2.outputRoot())

	if len(first) == 0 {
		t.Fatal("Expected output files")
	}
	if len(first) != len(second) {
		t.Fatalf("Output sets differ in size: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Output sets differ at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestRunPadsToSquare(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 10, 1, 60, 40)

	cfg := f.config(t, 5)
	cfg.Transform.EnablePadding = true
	cfg.Transform.EnableResize = false
	runQuiet(t, cfg)

	outputs := listOutputs(t, f.outputRoot())
	if len(outputs) != 10 {
		t.Fatalf("Expected 10 outputs, got %d", len(outputs))
	}

	img, err := openPNGorJPEG(filepath.Join(f.outputRoot(), outputs[0]))
	if err != nil {
		t.Fatal(err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 60 || bounds.Dy() != 60 {
		t.Errorf("Expected 60x60 padded output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func openPNGorJPEG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func TestRunResizesToTargetDimension(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 10, 1, 60, 40)

	cfg := f.config(t, 5)
	cfg.Transform.EnableResize = true
	cfg.Transform.TargetDimension = 32
	runQuiet(t, cfg)

	outputs := listOutputs(t, f.outputRoot())
	img, err := openPNGorJPEG(filepath.Join(f.outputRoot(), outputs[0]))
	if err != nil {
		t.Fatal(err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 32 {
		t.Errorf("Expected 32x32 output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestRunContinuesPastCorruptImage(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 10, 1, 40, 30)

	// Replace one image with garbage after it is listed in the manifest
	bad := filepath.Join(f.sourceRoot(), "cnv", "cnv-p03-0.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	report := runQuiet(t, f.config(t, 2))

	if len(report.Failures) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(report.Failures))
	}
	if report.Failures[0].FileName != "cnv-p03-0" {
		t.Errorf("Unexpected failed record: %+v", report.Failures[0])
	}
	if report.TotalProcessed() != 9 {
		t.Errorf("Expected 9 processed images, got %d", report.TotalProcessed())
	}
}

func TestRunWritesReport(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 10, 1, 40, 30)

	runQuiet(t, f.config(t, 4))

	if _, err := os.Stat(filepath.Join(f.outputRoot(), ReportFileName)); err != nil {
		t.Errorf("Expected %s to be written: %v", ReportFileName, err)
	}
}

func TestRunRejectsInvalidRatios(t *testing.T) {
	f := newFixture(t)
	f.addClass(t, "cnv", 10, 1, 40, 30)

	cfg := f.config(t, 1)
	cfg.Split.ValRatio = 0.6
	cfg.Split.TestRatio = 0.5

	p := New(cfg)
	p.ShowProgress = false
	if _, err := p.Run(); err == nil {
		t.Error("Expected error for ratios exceeding 1.0")
	}
}
