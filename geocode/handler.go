package geocode

import (
	"net/http"
	"strconv"

	"taja/model"
	"taja/render"
)

type reverseResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Location
}

// ReverseHandler resolves ?lat=&lon= for the shop capture form.
func ReverseHandler(g Geocoder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		errs := render.ValidationErrors{}
		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil || !model.CoordinateInRange(lat, model.MaxLatitude) {
			errs.Add("lat", "Enter a latitude between -90 and 90.")
		}
		lon, err := strconv.ParseFloat(q.Get("lon"), 64)
		if err != nil || !model.CoordinateInRange(lon, model.MaxLongitude) {
			errs.Add("lon", "Enter a longitude between -180 and 180.")
		}
		if !errs.Empty() {
			render.Invalid(w, errs)
			return
		}

		lat, lon = RoundCoordinate(lat), RoundCoordinate(lon)
		render.JSON(w, http.StatusOK, reverseResponse{
			Latitude:  lat,
			Longitude: lon,
			Location:  g.Lookup(r.Context(), lat, lon),
		})
	}
}
