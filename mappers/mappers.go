package mappers

import (
	"strconv"
	"time"

	"taja/geocode"
	"taja/model"
	"taja/parsers"
)

// ShopExportHeader is the column order of the shop CSV export.
var ShopExportHeader = []string{
	"id", "name", "phone_number", "address", "latitude", "longitude", "state",
	"local_government_area", "description", "is_active", "verification_status",
	"rejection_reason", "agent_id", "created_by", "owner", "photo_count", "date_created", "date_updated",
}

// MapShopToExportRow flattens a shop view into ShopExportHeader order.
func MapShopToExportRow(v ShopView) []string {
	return []string{
		strconv.FormatInt(v.ID, 10),
		v.Name,
		v.PhoneNumber,
		v.Address,
		formatCoordinate(v.Latitude),
		formatCoordinate(v.Longitude),
		v.State,
		v.LocalGovernmentArea,
		v.Description,
		strconv.FormatBool(v.IsActive),
		string(v.VerificationStatus),
		v.RejectionReason,
		v.AgentID,
		v.CreatedByName,
		derefString(v.Owner),
		strconv.Itoa(len(v.Photos)),
		v.DateCreated.UTC().Format(time.RFC3339),
		v.DateUpdated.UTC().Format(time.RFC3339),
	}
}

// MapImportedShop builds a shop from an import row. Unknown statuses fall
// back to PENDING and coordinates are rounded to 6 decimal places; the
// caller links the capturing agent.
func MapImportedShop(rec parsers.ParsedShopCSVRecord) model.Shop {
	s := model.Shop{
		Name:                rec.Name,
		PhoneNumber:         rec.PhoneNumber,
		Address:             rec.Address,
		Latitude:            roundedCoordinate(rec.Latitude),
		Longitude:           roundedCoordinate(rec.Longitude),
		State:               rec.State,
		LocalGovernmentArea: rec.LocalGovernmentArea,
		Description:         rec.Description,
		IsActive:            rec.IsActive,
		VerificationStatus:  model.VerificationStatus(rec.VerificationStatus),
		DateCreated:         rec.DateCreated,
	}
	if !s.VerificationStatus.Valid() {
		s.VerificationStatus = model.StatusPending
	}
	if s.VerificationStatus == model.StatusRejected {
		s.RejectionReason = rec.RejectionReason
	}
	return s
}

func roundedCoordinate(f *float64) *float64 {
	if f == nil {
		return nil
	}
	r := geocode.RoundCoordinate(*f)
	return &r
}

// MapImportedAgent builds the login and profile for an agent import row.
// The password hash is set by the caller.
func MapImportedAgent(rec parsers.ParsedAgentCSVRecord) (model.User, model.AgentProfile) {
	u := model.User{
		Username:  rec.Username,
		Email:     rec.Email,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		IsActive:  true,
	}
	p := model.AgentProfile{
		AgentID:        rec.AgentID,
		PhoneNumber:    rec.PhoneNumber,
		Address:        rec.Address,
		AssignedRegion: rec.AssignedRegion,
		IsActive:       true,
	}
	return u, p
}

func formatCoordinate(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
