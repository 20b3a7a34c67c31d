// Package acled implements the conflict-event provider protocol:
// password-grant token acquisition with caching, and the per-source
// bulk read endpoint.
package acled

import (
	"bytes"
	"encoding/json"
)

// Field is a raw provider value. The provider is inconsistent about
// numeric fields (some deployments quote them, some do not), so Field
// accepts both JSON strings and JSON numbers and preserves the text.
type Field string

// UnmarshalJSON accepts a JSON string, number, or null.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = Field(n.String())
	return nil
}

// String returns the raw field text.
func (f Field) String() string { return string(f) }

// RawRecord is one event exactly as the provider returns it. No field is
// guaranteed to be present or well-formed; normalization owns all coercion.
type RawRecord struct {
	EventID    Field `json:"event_id_cnty"`
	EventDate  Field `json:"event_date"`
	EventType  Field `json:"event_type"`
	SubType    Field `json:"sub_event_type"`
	Country    Field `json:"country"`
	Admin1     Field `json:"admin1"`
	Admin2     Field `json:"admin2"`
	Location   Field `json:"location"`
	Latitude   Field `json:"latitude"`
	Longitude  Field `json:"longitude"`
	Fatalities Field `json:"fatalities"`
	Actor1     Field `json:"actor1"`
	Actor2     Field `json:"actor2"`
	Notes      Field `json:"notes"`
}

// readEnvelope is the body of a read response. The provider reports its own
// status field inside an otherwise-200 HTTP response; anything other than
// 200 there is a source failure.
type readEnvelope struct {
	Status int         `json:"status"`
	Data   []RawRecord `json:"data"`
	Error  string      `json:"error,omitempty"`
}

// tokenEnvelope is the body of a successful password-grant response.
type tokenEnvelope struct {
	AccessToken string `json:"access_token"`
}
