package geo

import (
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver annotates report entries with a country code from a local
// MaxMind database. Lookups never fail the caller; anything that goes
// wrong degrades to an empty annotation.
type Resolver struct {
	db *maxminddb.Reader
}

func Open(path string) (*Resolver, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{db: db}, nil
}

func (r *Resolver) Close() error {
	return r.db.Close()
}

// Country returns the ISO country code for host, or "" when host is
// not a literal IP or is absent from the database. Hostnames are not
// resolved here; a DNS round per report line is not worth it.
func (r *Resolver) Country(host string) string {
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	var rec struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}
	if err := r.db.Lookup(ip, &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}
