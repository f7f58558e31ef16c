package fetch

import (
	"net/url"
	"strings"
)

// Target addresses one blob as (bucket, object).
type Target struct {
	Bucket string
	Object string
}

// Locator classifies image URLs into storage targets. URLs it does not
// recognize are fetched over plain HTTP by the caller.
type Locator struct {
	// Enabled gates storage-URL recognition entirely.
	Enabled bool
	// StorageHosts are the hosts served by the blob store, matched both
	// flat-path (host/bucket/object) and virtual-hosted (bucket.host/object).
	StorageHosts []string
}

// Parse recognizes gs://bucket/object, https://<host>/bucket/object and
// https://bucket.<host>/object forms, percent-decoding the object path.
// The second return is false when the URL is not a storage URL.
func (l *Locator) Parse(raw string) (Target, bool) {
	if !l.Enabled {
		return Target{}, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, false
	}

	// url.Parse percent-decodes into u.Path already
	object := strings.TrimPrefix(u.Path, "/")

	if u.Scheme == "gs" {
		if u.Host == "" || object == "" {
			return Target{}, false
		}
		return Target{Bucket: u.Host, Object: object}, true
	}

	host := u.Hostname()
	for _, sh := range l.StorageHosts {
		if host == sh {
			parts := strings.SplitN(object, "/", 2)
			if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
				return Target{}, false
			}
			return Target{Bucket: parts[0], Object: parts[1]}, true
		}
		if suffix := "." + sh; strings.HasSuffix(host, suffix) {
			bucket := strings.TrimSuffix(host, suffix)
			if bucket == "" || object == "" {
				return Target{}, false
			}
			return Target{Bucket: bucket, Object: object}, true
		}
	}
	return Target{}, false
}
