package signing

import (
	"net/url"
	"strings"
)

// signatureParams mark a URL that is already signed.
var signatureParams = []string{
	"X-Amz-Security-Token",
	"X-Amz-Signature",
	"X-Amz-Credential",
}

func parse(raw string) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, false
	}
	return u, true
}

// InDomain reports whether raw points at domain or one of its subdomains.
func InDomain(raw, domain string) bool {
	u, ok := parse(raw)
	if !ok {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// IsSigned reports whether raw already carries signature query parameters.
func IsSigned(raw string) bool {
	u, ok := parse(raw)
	if !ok {
		return false
	}
	q := u.Query()
	for _, p := range signatureParams {
		if _, ok := q[p]; ok {
			return true
		}
	}
	return false
}
