//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseSessionID checks that parsing never panics on arbitrary input
// and that every accepted id round-trips.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("01HZX3K2Q9V8YB7T6M5N4P3R2S")
	f.Add("00000000000000000000000000")
	f.Add("not-a-ulid")
	f.Add("'; DROP TABLE users;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("01HZX3K2Q9V8YB7T6M5N4P3R2S\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseSessionID(input)
		if err == nil {
			roundTrip, err2 := ParseSessionID(id.String())
			if err2 != nil {
				t.Errorf("valid id failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("round-trip changed id value")
			}
		}

		if !utf8.ValidString(input) && err == nil {
			t.Error("non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAffiliateID mirrors FuzzParseSessionID for durable ids.
func FuzzParseAffiliateID(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAffiliateID(input)
		if err == nil && id.IsNil() {
			t.Error("nil affiliate id was accepted")
		}
	})
}
