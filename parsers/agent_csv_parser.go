package parsers

import (
	"io"

	"go.uber.org/zap"
)

// ParsedAgentCSVRecord is one row of an agent import file.
type ParsedAgentCSVRecord struct {
	Line           int
	AgentID        string
	Username       string
	Email          string
	Password       string
	FirstName      string
	LastName       string
	PhoneNumber    string
	Address        string
	AssignedRegion string
}

// ParseAgentCSV reads an agent import file. Rows without username, email or
// password are skipped with a warning.
func ParseAgentCSV(r io.Reader) ([]ParsedAgentCSVRecord, error) {
	reader, colIndex, err := newCSVReader(r, []string{"username", "email", "password"})
	if err != nil {
		return nil, err
	}

	var records []ParsedAgentCSVRecord
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			zap.S().Warnf("agent csv line %d unreadable (skipped): %v", line, err)
			continue
		}

		get := getter(colIndex, rec)
		record := ParsedAgentCSVRecord{
			Line:           line,
			AgentID:        get("agent_id"),
			Username:       get("username"),
			Email:          get("email"),
			Password:       get("password"),
			FirstName:      get("first_name"),
			LastName:       get("last_name"),
			PhoneNumber:    get("phone_number"),
			Address:        get("address"),
			AssignedRegion: get("assigned_region"),
		}
		if record.Username == "" || record.Email == "" || record.Password == "" {
			zap.S().Warnf("agent csv line %d missing username, email or password (skipped)", line)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
