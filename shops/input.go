package shops

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"taja/geocode"
	"taja/model"
	"taja/photostore"
	"taja/render"
)

// Upper bound on a whole create or update request.
const maxRequestBytes = 64 << 20

const required = "This field is required."

// shopInput holds the fields present in a create or update request. A nil
// pointer means the field was not sent.
type shopInput struct {
	Name                *string
	PhoneNumber         *string
	Address             *string
	State               *string
	LocalGovernmentArea *string
	Description         *string
	IsActive            *bool
	VerificationStatus  *model.VerificationStatus
	RejectionReason     *string

	// Coordinates are sent together; a sent empty value clears them.
	CoordinatesSent bool
	Latitude        *float64
	Longitude       *float64

	OwnerSent bool
	OwnerID   *int64

	PhotosToDelete []int64
	Uploads        []photostore.Photo
}

func (in shopInput) staffOnlyFieldsSent() bool {
	return in.VerificationStatus != nil || in.RejectionReason != nil || in.OwnerSent
}

// readRequestFields flattens a JSON object or a multipart form into string
// values per field, plus the uploaded files for multipart requests.
func readRequestFields(w http.ResponseWriter, r *http.Request) (map[string][]string, []*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return nil, nil, fmt.Errorf("malformed multipart body: %w", err)
		}
		return r.MultipartForm.Value, r.MultipartForm.File["uploaded_photos"], nil
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("malformed JSON body: %w", err)
	}
	fields := make(map[string][]string, len(raw))
	for k, v := range raw {
		vals, err := jsonValues(v)
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", k, err)
		}
		fields[k] = vals
	}
	return fields, nil, nil
}

// jsonValues renders a JSON value as form-style strings: null becomes an
// empty string and arrays become one value per element.
func jsonValues(v json.RawMessage) ([]string, error) {
	var val interface{}
	if err := json.Unmarshal(v, &val); err != nil {
		return nil, err
	}
	switch t := val.(type) {
	case nil:
		return []string{""}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, scalarString(e))
		}
		return out, nil
	case map[string]interface{}:
		return nil, errors.New("objects are not supported")
	default:
		return []string{scalarString(t)}, nil
	}
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// parseShopInput validates the request fields. creating requires a name.
func parseShopInput(fields map[string][]string, files []*multipart.FileHeader, maxPhotoBytes int64, creating bool) (shopInput, render.ValidationErrors) {
	errs := render.ValidationErrors{}
	var in shopInput

	str := func(name string, maxLen int) *string {
		vals, ok := fields[name]
		if !ok {
			return nil
		}
		s := ""
		if len(vals) > 0 {
			s = strings.TrimSpace(vals[0])
		}
		if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
			errs.Add(name, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen))
		}
		return &s
	}

	in.Name = str("name", model.MaxShopNameLen)
	if in.Name != nil && *in.Name == "" {
		errs.Add("name", "This field may not be blank.")
	} else if in.Name == nil && creating {
		errs.Add("name", required)
	}
	in.PhoneNumber = str("phone_number", model.MaxShopPhoneLen)
	in.Address = str("address", 0)
	in.State = str("state", model.MaxShopAreaLen)
	in.LocalGovernmentArea = str("local_government_area", model.MaxShopAreaLen)
	in.Description = str("description", 0)
	in.RejectionReason = str("rejection_reason", 0)

	if s := str("is_active", 0); s != nil {
		b, err := strconv.ParseBool(*s)
		if err != nil {
			errs.Add("is_active", "Must be a valid boolean.")
		} else {
			in.IsActive = &b
		}
	}
	if s := str("verification_status", 0); s != nil {
		vs := model.VerificationStatus(strings.ToUpper(*s))
		if !vs.Valid() {
			errs.Add("verification_status", fmt.Sprintf("%q is not a valid choice.", *s))
		} else {
			in.VerificationStatus = &vs
		}
	}

	latStr, latSent := fields["latitude"]
	lonStr, lonSent := fields["longitude"]
	if latSent || lonSent {
		lat, latErr := parseCoordinate(latStr, model.MaxLatitude)
		lon, lonErr := parseCoordinate(lonStr, model.MaxLongitude)
		if latErr != "" {
			errs.Add("latitude", latErr)
		}
		if lonErr != "" {
			errs.Add("longitude", lonErr)
		}
		if latErr == "" && lonErr == "" {
			if (lat == nil) != (lon == nil) {
				errs.Add("detail", "Latitude and longitude must be provided together.")
			}
			in.CoordinatesSent = true
			in.Latitude, in.Longitude = lat, lon
		}
	}

	if s := str("owner", 0); s != nil {
		in.OwnerSent = true
		if *s != "" {
			id, err := strconv.ParseInt(*s, 10, 64)
			if err != nil {
				errs.Add("owner", "A valid user id is required.")
			} else {
				in.OwnerID = &id
			}
		}
	}

	for _, v := range fields["photos_to_delete_ids"] {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				errs.Add("photos_to_delete_ids", fmt.Sprintf("%q is not a valid photo id.", part))
				continue
			}
			in.PhotosToDelete = append(in.PhotosToDelete, id)
		}
	}

	for _, fh := range files {
		p, err := readUpload(fh, maxPhotoBytes)
		if err != nil {
			errs.Add("uploaded_photos", uploadMessage(err, maxPhotoBytes))
			continue
		}
		in.Uploads = append(in.Uploads, p)
	}
	return in, errs
}

// parseCoordinate accepts an empty value (clear) or a finite number within
// ±limit, rounded to 6 decimal places.
func parseCoordinate(vals []string, limit float64) (*float64, string) {
	if len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return nil, ""
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
	if err != nil {
		return nil, "A valid number is required."
	}
	if !model.CoordinateInRange(f, limit) {
		return nil, fmt.Sprintf("Ensure this value is between -%g and %g.", limit, limit)
	}
	f = geocode.RoundCoordinate(f)
	return &f, ""
}

func readUpload(fh *multipart.FileHeader, maxBytes int64) (photostore.Photo, error) {
	if fh.Size > maxBytes {
		return photostore.Photo{}, photostore.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return photostore.Photo{}, err
	}
	defer f.Close()
	return photostore.ReadPhoto(f, maxBytes)
}

func uploadMessage(err error, maxBytes int64) string {
	switch {
	case errors.Is(err, photostore.ErrUnsupportedType):
		return "Only JPEG and PNG images are allowed."
	case errors.Is(err, photostore.ErrTooLarge):
		return fmt.Sprintf("Image size must be under %dMB.", maxBytes>>20)
	default:
		return "Upload a valid image."
	}
}

// apply copies the sent fields onto s.
func (in shopInput) apply(s *model.Shop) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.Name, in.Name)
	set(&s.PhoneNumber, in.PhoneNumber)
	set(&s.Address, in.Address)
	set(&s.State, in.State)
	set(&s.LocalGovernmentArea, in.LocalGovernmentArea)
	set(&s.Description, in.Description)
	set(&s.RejectionReason, in.RejectionReason)
	if in.IsActive != nil {
		s.IsActive = *in.IsActive
	}
	if in.VerificationStatus != nil {
		s.VerificationStatus = *in.VerificationStatus
	}
	if in.CoordinatesSent {
		s.Latitude, s.Longitude = in.Latitude, in.Longitude
	}
	if in.OwnerSent {
		s.OwnerID = in.OwnerID
	}
}
