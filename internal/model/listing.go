package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ListingRecord is one school found on a Phase 1 result page.
//
// HasKnowMoreLink and Phase2Ready are derived from KnowMoreLink and must
// only be set through Link or Finalize.
type ListingRecord struct {
	HasKnowMoreLink bool `json:"has_know_more_link"`
	Phase2Ready     bool `json:"phase2_ready"`

	UDISECode         string `json:"udise_code"`
	SchoolName        string `json:"school_name"`
	OperationalStatus string `json:"operational_status"`
	EduDistrict       string `json:"edu_district"`
	EduBlock          string `json:"edu_block"`
	AcademicYear      string `json:"academic_year"`
	SchoolCategory    string `json:"school_category"`
	SchoolManagement  string `json:"school_management"`
	ClassRange        string `json:"class_range"`
	SchoolType        string `json:"school_type"`
	SchoolLocation    string `json:"school_location"`
	Address           string `json:"address"`
	PinCode           string `json:"pin_code"`
	LastModified      string `json:"last_modified"`
	KnowMoreLink      string `json:"know_more_link"`

	State          string    `json:"state"`
	StateID        string    `json:"state_id"`
	District       string    `json:"district"`
	DistrictID     string    `json:"district_id"`
	Page           int       `json:"page"`
	ExtractionDate time.Time `json:"extraction_date"`
}

// ValidReferenceLink reports whether link is a usable detail-page URL:
// present, not NA, absolute http(s) with a host.
func ValidReferenceLink(link string) bool {
	if IsNA(link) {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// Link sets the reference link and recomputes the derived eligibility flags.
func (r *ListingRecord) Link(link string) {
	r.KnowMoreLink = OrNA(link)
	r.Finalize()
}

// Finalize fills blank descriptive fields with NA and recomputes
// HasKnowMoreLink and Phase2Ready from KnowMoreLink.
func (r *ListingRecord) Finalize() {
	for _, f := range r.descriptive() {
		*f = OrNA(*f)
	}
	r.KnowMoreLink = OrNA(r.KnowMoreLink)
	r.HasKnowMoreLink = ValidReferenceLink(r.KnowMoreLink)
	r.Phase2Ready = r.HasKnowMoreLink
}

// EligibleForDetail reports whether the record may be handed to Phase 2.
func (r ListingRecord) EligibleForDetail() bool {
	return r.Phase2Ready && r.HasKnowMoreLink && ValidReferenceLink(r.KnowMoreLink)
}

func (r *ListingRecord) descriptive() []*string {
	return []*string{
		&r.UDISECode, &r.SchoolName, &r.OperationalStatus, &r.EduDistrict,
		&r.EduBlock, &r.AcademicYear, &r.SchoolCategory, &r.SchoolManagement,
		&r.ClassRange, &r.SchoolType, &r.SchoolLocation, &r.Address,
		&r.PinCode, &r.LastModified,
	}
}

// ListingColumns is the Phase 1 file header. The two status columns come
// first so consumers can filter on them without parsing the rest.
var ListingColumns = []string{
	"has_know_more_link", "phase2_ready",
	"udise_code", "school_name", "operational_status",
	"edu_district", "edu_block", "academic_year", "school_category",
	"school_management", "class_range", "school_type", "school_location",
	"address", "pin_code", "last_modified", "know_more_link",
	"state", "state_id", "district", "district_id", "page", "extraction_date",
}

// Row renders the record in ListingColumns order.
func (r ListingRecord) Row() []string {
	return []string{
		strconv.FormatBool(r.HasKnowMoreLink), strconv.FormatBool(r.Phase2Ready),
		r.UDISECode, r.SchoolName, r.OperationalStatus,
		r.EduDistrict, r.EduBlock, r.AcademicYear, r.SchoolCategory,
		r.SchoolManagement, r.ClassRange, r.SchoolType, r.SchoolLocation,
		r.Address, r.PinCode, r.LastModified, r.KnowMoreLink,
		r.State, r.StateID, r.District, r.DistrictID,
		strconv.Itoa(r.Page), formatTime(r.ExtractionDate),
	}
}

// ListingFromRow rebuilds a record from a Phase 1 row keyed by header.
// The eligibility columns in the file are ignored and recomputed from the
// link, so a hand-edited file can never break the linkage invariant.
func ListingFromRow(header, row []string) ListingRecord {
	get := rowGetter(header, row)
	r := ListingRecord{
		UDISECode:         get("udise_code"),
		SchoolName:        get("school_name"),
		OperationalStatus: get("operational_status"),
		EduDistrict:       get("edu_district"),
		EduBlock:          get("edu_block"),
		AcademicYear:      get("academic_year"),
		SchoolCategory:    get("school_category"),
		SchoolManagement:  get("school_management"),
		ClassRange:        get("class_range"),
		SchoolType:        get("school_type"),
		SchoolLocation:    get("school_location"),
		Address:           get("address"),
		PinCode:           get("pin_code"),
		LastModified:      get("last_modified"),
		KnowMoreLink:      get("know_more_link"),
		State:             get("state"),
		StateID:           get("state_id"),
		District:          get("district"),
		DistrictID:        get("district_id"),
	}
	r.Page, _ = strconv.Atoi(get("page"))
	r.ExtractionDate = parseTime(get("extraction_date"))
	r.Finalize()
	return r
}

func rowGetter(header, row []string) func(string) string {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return func(col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return NA
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
