package rulings

import (
	"strings"
	"time"
)

// UnknownField is the sentinel stored for source fields the API omitted.
// Downstream code relies on every column being populated.
const UnknownField = "N/A"

const groundsSeparator = "\n"

// Ruling models one persisted sentencia record.
type Ruling struct {
	ID              int64     `gorm:"column:id;primaryKey" json:"id"`
	RulingNumber    string    `gorm:"column:ruling_number;uniqueIndex;size:190;not null" json:"numero_sentencia"`
	PublicationDate string    `gorm:"column:publication_date;size:32;index:idx_rulings_publication_date" json:"fecha_publicacion"`
	Plaintiff       string    `gorm:"column:plaintiff;size:320;index:idx_rulings_plaintiff" json:"nombre_demandante"`
	Defendant       string    `gorm:"column:defendant;size:320;index:idx_rulings_defendant" json:"nombre_demandado"`
	CaseFileNumber  string    `gorm:"column:case_file_number;size:190;index:idx_rulings_case_file" json:"numero_expediente"`
	Grounds         string    `gorm:"column:grounds;type:text" json:"-"`
	FileURL         string    `gorm:"column:file_url;size:512" json:"url_archivo"`
	Keywords        string    `gorm:"column:keywords;size:512" json:"palabras_clave"`
	Summary         string    `gorm:"column:summary;size:512" json:"resumen"`
	FetchedAt       time.Time `gorm:"column:fetched_at;not null" json:"fecha_scraping"`
}

// TableName provides the explicit table binding for GORM.
func (Ruling) TableName() string {
	return "rulings"
}

// GroundsList splits the stored grounds text back into ordered paragraphs.
func (r Ruling) GroundsList() []string {
	if r.Grounds == "" {
		return []string{}
	}
	return strings.Split(r.Grounds, groundsSeparator)
}

// JoinGrounds flattens ordered grounds paragraphs into the stored representation.
func JoinGrounds(grounds []string) string {
	return strings.Join(grounds, groundsSeparator)
}

// KeywordSet splits the derived comma-joined keyword column into a set.
func (r Ruling) KeywordSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, keyword := range strings.Split(r.Keywords, ", ") {
		if keyword == "" {
			continue
		}
		set[keyword] = struct{}{}
	}
	return set
}

// Record is the normalized shape produced by the fetch engine before
// derived fields exist. Every field is always populated; missing source
// values carry the UnknownField sentinel.
type Record struct {
	ID              int64
	RulingNumber    string
	PublicationDate string
	Plaintiff       string
	Defendant       string
	CaseFileNumber  string
	Grounds         []string
	FileURL         string
}

// IngestionStat is one append-only row per save operation.
type IngestionStat struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string    `gorm:"column:run_id;size:36;not null"`
	RecordedAt   time.Time `gorm:"column:recorded_at;not null"`
	TotalRulings int64     `gorm:"column:total_rulings;not null"`
	NewRulings   int64     `gorm:"column:new_rulings;not null"`
}

// TableName provides the explicit table binding for GORM.
func (IngestionStat) TableName() string {
	return "ingestion_stats"
}

// SearchTerm tracks how often a query term has been searched.
type SearchTerm struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Term           string    `gorm:"column:term;uniqueIndex;size:190;not null"`
	Frequency      int64     `gorm:"column:frequency;not null;default:1"`
	LastSearchedAt time.Time `gorm:"column:last_searched_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SearchTerm) TableName() string {
	return "search_terms"
}
