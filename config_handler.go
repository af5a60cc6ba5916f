package main

import (
	"net/http"
	"time"

	"taja/config"
	"taja/geocode"
	"taja/render"
)

const redacted = "********"

type configView struct {
	Addr               string        `json:"addr"`
	LogLevel           string        `json:"log_level"`
	DBDriver           string        `json:"db_driver"`
	AccessTTL          time.Duration `json:"access_ttl_ns"`
	RefreshTTL         time.Duration `json:"refresh_ttl_ns"`
	InsecureJWTSecret  bool          `json:"insecure_jwt_secret"`
	OpenCageAPIKey     string        `json:"opencage_api_key"`
	GeocodeCache       string        `json:"geocode_cache"`
	GeocodeCacheTTL    time.Duration `json:"geocode_cache_ttl_ns"`
	PhotoBackend       string        `json:"photo_backend"`
	MediaURL           string        `json:"media_url"`
	GCSBucket          string        `json:"gcs_bucket,omitempty"`
	MaxPhotoBytes      int64         `json:"max_photo_bytes"`
	CORSAllowedOrigins []string      `json:"cors_allowed_origins"`
}

// GetConfigHandler returns the effective settings with secrets masked.
// geocodeCache names the cache backend actually in use.
func GetConfigHandler(geocodeCache string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, http.StatusOK, newConfigView(config.GetConfig(), geocodeCache))
	}
}

// cacheBackend names the kind of c for the config view.
func cacheBackend(c geocode.Cache) string {
	if _, ok := c.(*geocode.RedisCache); ok {
		return "redis"
	}
	return "memory"
}

func newConfigView(c config.Config, geocodeCache string) configView {
	v := configView{
		Addr:               c.Addr,
		LogLevel:           c.LogLevel,
		DBDriver:           c.DBDriver,
		AccessTTL:          c.AccessTTL,
		RefreshTTL:         c.RefreshTTL,
		InsecureJWTSecret:  c.UsesInsecureSecret(),
		GeocodeCache:       geocodeCache,
		GeocodeCacheTTL:    c.GeocodeCacheTTL,
		PhotoBackend:       c.PhotoBackend,
		MediaURL:           c.MediaURL,
		GCSBucket:          c.GCSBucket,
		MaxPhotoBytes:      c.MaxPhotoBytes,
		CORSAllowedOrigins: c.CORSAllowedOrigins,
	}
	if c.OpenCageAPIKey != "" {
		v.OpenCageAPIKey = redacted
	}
	return v
}
