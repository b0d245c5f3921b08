// Package split partitions a labeled image collection into train/val/test
// subsets at the patient level. The split unit is the patient, never the
// image: all images from one patient land in exactly one subset, which is
// what keeps evaluation free of patient-level data leakage.
package split

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"

	"github.com/menta2k/oct-prep/pkg/types"
)

// DefaultMinPatients is the minimum number of distinct patients a class
// needs before it is split at all. Classes below it are dropped wholly:
// a handful of patients is too noisy to evaluate against.
const DefaultMinPatients = 10

// Ratios holds the target fractions of patients per subset
type Ratios struct {
	Train float64
	Val   float64
	Test  float64
}

// Validate checks that the ratios describe a complete partition
func (r Ratios) Validate() error {
	if r.Train <= 0 || r.Val < 0 || r.Test < 0 {
		return errors.Errorf("invalid split ratios: train=%.3f val=%.3f test=%.3f",
			r.Train, r.Val, r.Test)
	}
	if sum := r.Train + r.Val + r.Test; math.Abs(sum-1.0) > 1e-6 {
		return errors.Errorf("split ratios must sum to 1.0, got %f", sum)
	}
	return nil
}

// GroupByDisease buckets records by their disease label and returns the
// labels in sorted order so that iteration, and therefore random-number
// consumption, is deterministic across runs.
func GroupByDisease(records []types.ImageRecord) (map[string][]types.ImageRecord, []string) {
	groups := make(map[string][]types.ImageRecord)
	for _, rec := range records {
		groups[rec.Disease] = append(groups[rec.Disease], rec)
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	return groups, labels
}

// DistinctPatients returns the deduplicated patient identifiers of a
// class in first-seen order
func DistinctPatients(records []types.ImageRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var patients []string
	for _, rec := range records {
		if _, ok := seen[rec.PatientID]; ok {
			continue
		}
		seen[rec.PatientID] = struct{}{}
		patients = append(patients, rec.PatientID)
	}
	return patients
}

// Partition splits one class's records into train/val/test by patient.
// The returned bool is false when the class has fewer than minPatients
// distinct patients and is excluded from every subset; that is an
// expected policy outcome, not an error.
//
// The split is two-stage: the patient list is shuffled, a train group of
// about Train×n patients is taken first, and the remainder is divided
// into test and val using Test/(Test+Val). Group sizes round to the
// nearest whole patient at each stage. Small eligible classes can leave
// the val or test group empty; empty groups are kept empty, never merged.
//
// Randomness comes exclusively from rng, so a caller holding a seeded
// source gets identical assignments on every run.
func Partition(disease string, records []types.ImageRecord, ratios Ratios, minPatients int, rng *rand.Rand) (types.Assignment, bool) {
	patients := DistinctPatients(records)
	if len(patients) < minPatients {
		return types.Assignment{Disease: disease}, false
	}

	shuffled := make([]string, len(patients))
	copy(shuffled, patients)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nTrain := int(math.Round(ratios.Train * float64(n)))
	if nTrain > n {
		nTrain = n
	}

	rest := shuffled[nTrain:]
	nTest := 0
	if denom := ratios.Test + ratios.Val; denom > 0 && len(rest) > 0 {
		nTest = int(math.Round(float64(len(rest)) * ratios.Test / denom))
	}

	assignment := make(map[string]types.Split, n)
	for _, p := range shuffled[:nTrain] {
		assignment[p] = types.Train
	}
	for _, p := range rest[:nTest] {
		assignment[p] = types.Test
	}
	for _, p := range rest[nTest:] {
		assignment[p] = types.Val
	}

	subsets := make(map[types.Split][]types.ImageRecord, 3)
	for _, rec := range records {
		s := assignment[rec.PatientID]
		subsets[s] = append(subsets[s], rec)
	}

	return types.Assignment{Disease: disease, Subsets: subsets}, true
}
