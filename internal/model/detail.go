package model

import (
	"strconv"
	"time"
)

// ExtractionStatus classifies how much of a detail page was recovered.
type ExtractionStatus string

const (
	StatusSuccess ExtractionStatus = "SUCCESS"
	StatusPartial ExtractionStatus = "PARTIAL"
	StatusFailed  ExtractionStatus = "FAILED"
)

// DetailRecord is the Phase 2 enrichment of one eligible ListingRecord.
// It carries the full listing row so identity and provenance survive even
// when nothing could be extracted.
type DetailRecord struct {
	Listing ListingRecord `json:"listing"`

	DetailSchoolName  string    `json:"detail_school_name"`
	SourceURL         string    `json:"source_url"`
	DetailExtractedAt time.Time `json:"detail_extracted_at"`

	AcademicYear         string `json:"academic_year_detail"`
	Location             string `json:"location"`
	SchoolCategory       string `json:"school_category_detail"`
	SchoolType           string `json:"school_type_detail"`
	ClassFrom            string `json:"class_from"`
	ClassTo              string `json:"class_to"`
	YearOfEstablishment  string `json:"year_of_establishment"`
	NationalManagement   string `json:"national_management"`
	StateManagement      string `json:"state_management"`
	AffiliationBoardSec  string `json:"affiliation_board_sec"`
	AffiliationBoardHSec string `json:"affiliation_board_hsec"`

	TotalStudents  Count `json:"total_students"`
	TotalBoys      Count `json:"total_boys"`
	TotalGirls     Count `json:"total_girls"`
	TotalTeachers  Count `json:"total_teachers"`
	MaleTeachers   Count `json:"male_teachers"`
	FemaleTeachers Count `json:"female_teachers"`

	Status          ExtractionStatus `json:"extraction_status"`
	FieldsPopulated int              `json:"fields_populated_count"`
	FieldsTotal     int              `json:"fields_total"`
	FailureReason   string           `json:"failure_reason,omitempty"`
}

// NewDetailRecord starts a record for listing with every enriched field
// missing and status FAILED.
func NewDetailRecord(listing ListingRecord) DetailRecord {
	return DetailRecord{
		Listing:              listing,
		DetailSchoolName:     NA,
		SourceURL:            listing.KnowMoreLink,
		AcademicYear:         NA,
		Location:             NA,
		SchoolCategory:       NA,
		SchoolType:           NA,
		ClassFrom:            NA,
		ClassTo:              NA,
		YearOfEstablishment:  NA,
		NationalManagement:   NA,
		StateManagement:      NA,
		AffiliationBoardSec:  NA,
		AffiliationBoardHSec: NA,
		Status:               StatusFailed,
	}
}

// ClassRange joins ClassFrom and ClassTo when both are known.
func (d DetailRecord) ClassRange() string {
	if IsNA(d.ClassFrom) || IsNA(d.ClassTo) {
		return NA
	}
	return d.ClassFrom + " To " + d.ClassTo
}

// DetailColumns is the Phase 2 file header: the listing columns followed
// by the enrichment and classification columns.
var DetailColumns = append(append([]string{}, ListingColumns...),
	"detail_school_name", "source_url", "detail_extracted_at",
	"academic_year_detail", "location", "school_category_detail",
	"school_type_detail", "class_from", "class_to", "class_range_detail",
	"year_of_establishment", "national_management", "state_management",
	"affiliation_board_sec", "affiliation_board_hsec",
	"total_students", "total_boys", "total_girls",
	"total_teachers", "male_teachers", "female_teachers",
	"extraction_status", "fields_populated_count", "fields_total",
	"failure_reason",
)

// Row renders the record in DetailColumns order.
func (d DetailRecord) Row() []string {
	return append(d.Listing.Row(),
		d.DetailSchoolName, d.SourceURL, formatTime(d.DetailExtractedAt),
		d.AcademicYear, d.Location, d.SchoolCategory,
		d.SchoolType, d.ClassFrom, d.ClassTo, d.ClassRange(),
		d.YearOfEstablishment, d.NationalManagement, d.StateManagement,
		d.AffiliationBoardSec, d.AffiliationBoardHSec,
		d.TotalStudents.String(), d.TotalBoys.String(), d.TotalGirls.String(),
		d.TotalTeachers.String(), d.MaleTeachers.String(), d.FemaleTeachers.String(),
		string(d.Status), strconv.Itoa(d.FieldsPopulated), strconv.Itoa(d.FieldsTotal),
		d.FailureReason,
	)
}
