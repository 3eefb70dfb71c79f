package geoip

import (
	"net"
	"path/filepath"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/varianta/varianta/internal/logging"
)

var reader *geoip2.Reader

// Init opens the GeoLite2 country database if one is present in dataDir.
// Missing database is not an error; lookups simply return empty countries and
// tracked events carry no geography.
func Init(dataDir string) error {
	return InitFile(filepath.Join(dataDir, "GeoLite2-Country.mmdb"))
}

// InitFile opens a country database at an explicit path (GEOIP_DB config).
func InitFile(dbPath string) error {
	var err error
	reader, err = geoip2.Open(dbPath)
	if err != nil {
		logging.L().Warn("geoip database unavailable, country enrichment disabled",
			zap.String("path", dbPath), zap.Error(err))
		reader = nil
		return nil
	}

	logging.L().Info("geoip database loaded", zap.String("path", dbPath))
	return nil
}

// LookupCountry returns the ISO 3166-1 alpha-2 country code for an IP,
// or "" when the database is missing or the IP does not resolve.
func LookupCountry(ipStr string) string {
	if reader == nil {
		return ""
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}

	record, err := reader.Country(ip)
	if err != nil {
		logging.L().Debug("geoip lookup failed", zap.String("ip", ipStr), zap.Error(err))
		return ""
	}

	// Empty when unresolved; experiment_event.country is CHAR(2)
	return record.Country.IsoCode
}

// Close closes the GeoIP database
func Close() error {
	if reader != nil {
		return reader.Close()
	}
	return nil
}
