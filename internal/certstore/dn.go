package certstore

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

var attributeShortNames = map[string]string{
	"2.5.4.3":                    "CN",
	"2.5.4.4":                    "SURNAME",
	"2.5.4.5":                    "SERIALNUMBER",
	"2.5.4.6":                    "C",
	"2.5.4.7":                    "L",
	"2.5.4.8":                    "ST",
	"2.5.4.9":                    "STREET",
	"2.5.4.10":                   "O",
	"2.5.4.11":                   "OU",
	"2.5.4.12":                   "T",
	"2.5.4.17":                   "POSTALCODE",
	"2.5.4.42":                   "GN",
	"0.9.2342.19200300.100.1.1":  "UID",
	"0.9.2342.19200300.100.1.25": "DC",
	"1.2.840.113549.1.9.1":       "E",
}

// DistinguishedName renders a DER encoded X.509 name as "key=value,key=value".
// Attributes keep the order in which they appear in the certificate, so the same
// certificate always yields the same string. Unknown attribute types use their
// dotted OID as key.
func DistinguishedName(raw []byte) (string, error) {
	var seq pkix.RDNSequence
	rest, err := asn1.Unmarshal(raw, &seq)
	if err != nil {
		return "", fmt.Errorf("failed to parse distinguished name: %w", err)
	}
	if len(rest) > 0 {
		return "", fmt.Errorf("trailing data after distinguished name")
	}

	parts := make([]string, 0, len(seq))
	for _, rdn := range seq {
		for _, atv := range rdn {
			key := atv.Type.String()
			if short, ok := attributeShortNames[key]; ok {
				key = short
			}
			parts = append(parts, key+"="+fmt.Sprint(atv.Value))
		}
	}
	return strings.Join(parts, ","), nil
}
