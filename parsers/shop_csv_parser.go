package parsers

import (
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ParsedShopCSVRecord is one row of a shop import file.
type ParsedShopCSVRecord struct {
	Line                int
	Name                string
	PhoneNumber         string
	Address             string
	Latitude            *float64
	Longitude           *float64
	State               string
	LocalGovernmentArea string
	Description         string
	IsActive            bool
	VerificationStatus  string
	RejectionReason     string
	AgentID             string
	DateCreated         time.Time
}

var shopDateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// ParseShopCSV reads a shop import file. Rows without a name or with
// unparsable coordinates are skipped with a warning.
func ParseShopCSV(r io.Reader) ([]ParsedShopCSVRecord, error) {
	reader, colIndex, err := newCSVReader(r, []string{"name"})
	if err != nil {
		return nil, err
	}

	var records []ParsedShopCSVRecord
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			zap.S().Warnf("shop csv line %d unreadable (skipped): %v", line, err)
			continue
		}

		get := getter(colIndex, rec)
		name := get("name")
		if name == "" {
			zap.S().Warnf("shop csv line %d has no name (skipped)", line)
			continue
		}
		lat, errLat := parseOptionalFloat(get("latitude"))
		lon, errLon := parseOptionalFloat(get("longitude"))
		if errLat != nil || errLon != nil {
			zap.S().Warnf("shop csv line %d has invalid coordinates (skipped)", line)
			continue
		}

		record := ParsedShopCSVRecord{
			Line:                line,
			Name:                name,
			PhoneNumber:         get("phone_number"),
			Address:             get("address"),
			Latitude:            lat,
			Longitude:           lon,
			State:               get("state"),
			LocalGovernmentArea: get("local_government_area"),
			Description:         get("description"),
			IsActive:            parseBoolDefault(get("is_active"), true),
			VerificationStatus:  strings.ToUpper(get("verification_status")),
			RejectionReason:     get("rejection_reason"),
			AgentID:             get("agent_id"),
		}
		if raw := get("date_created"); raw != "" {
			for _, layout := range shopDateLayouts {
				if t, err := time.Parse(layout, raw); err == nil {
					record.DateCreated = t.UTC()
					break
				}
			}
			if record.DateCreated.IsZero() {
				zap.S().Warnf("shop csv line %d has unparsable date_created %q (using import time)", line, raw)
			}
		}
		records = append(records, record)
	}
	return records, nil
}
