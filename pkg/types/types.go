package types

// ImageRecord is one row of the dataset manifest: a single labeled OCT
// image together with the patient it came from. Records are immutable
// once loaded; FileName (no extension) is the record identity.
type ImageRecord struct {
	FileName    string `csv:"file_name" json:"file_name"`
	Disease     string `csv:"disease" json:"disease"`
	Subcategory string `csv:"subcategory" json:"subcategory"`
	Condition   string `csv:"condition" json:"condition"`
	PatientID   string `csv:"patient_id" json:"patient_id"`
	Eye         string `csv:"eye" json:"eye"`
	Sex         string `csv:"sex" json:"sex"`
	Year        string `csv:"year" json:"year"`
	Width       int    `csv:"image_width" json:"image_width"`
	Height      int    `csv:"image_height" json:"image_height"`
}

// Split identifies one of the three dataset subsets
type Split string

const (
	Train Split = "train"
	Val   Split = "val"
	Test  Split = "test"
)

// Splits returns all splits in their canonical order
func Splits() []Split {
	return []Split{Train, Val, Test}
}

// Assignment is the result of partitioning one disease class by patient:
// three disjoint record subsets whose union is the full class when the
// class is eligible. No patient contributes images to more than one subset.
type Assignment struct {
	Disease string
	Subsets map[Split][]ImageRecord
}

// Records returns the subset assigned to a split (nil if empty)
func (a Assignment) Records(s Split) []ImageRecord {
	return a.Subsets[s]
}

// RecordFailure describes a single image that could not be processed.
// Failures never abort a run; they accumulate into the final report.
type RecordFailure struct {
	FileName string `json:"file_name"`
	Disease  string `json:"disease"`
	Split    Split  `json:"split"`
	Reason   string `json:"reason"`
}

// ClassSkip records a disease class excluded from the output because it
// has too few distinct patients to split safely. This is expected policy,
// not an error.
type ClassSkip struct {
	Disease  string `json:"disease"`
	Patients int    `json:"patients"`
	Minimum  int    `json:"minimum"`
}

// Report summarizes a full preparation run
type Report struct {
	RecordsLoaded  int                      `json:"records_loaded"`
	RecordsDropped int                      `json:"records_dropped"`
	OrphansDeleted []string                 `json:"orphans_deleted,omitempty"`
	SkippedClasses []ClassSkip              `json:"skipped_classes,omitempty"`
	Failures       []RecordFailure          `json:"failures,omitempty"`
	Processed      map[string]map[Split]int `json:"processed"`
	Seed           *int64                   `json:"seed,omitempty"`
}

// AddProcessed increments the success counter for (disease, split)
func (r *Report) AddProcessed(disease string, s Split) {
	if r.Processed == nil {
		r.Processed = make(map[string]map[Split]int)
	}
	if r.Processed[disease] == nil {
		r.Processed[disease] = make(map[Split]int)
	}
	r.Processed[disease][s]++
}

// TotalProcessed returns the number of images written across all classes
// and splits
func (r *Report) TotalProcessed() int {
	total := 0
	for _, bySplit := range r.Processed {
		for _, n := range bySplit {
			total += n
		}
	}
	return total
}
