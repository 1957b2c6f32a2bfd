// Package secret stops credentials leaking into logs and traces.
package secret

import "database/sql/driver"

const redacted = "REDACTED"

// String holds a sensitive value. Anything that formats or marshals it gets
// the redaction marker instead of the value, so a password in a config struct
// can not end up in a span field or a dumped error by accident. Code that
// genuinely needs the value must ask for it with Raw.
type String string

// String implements fmt.Stringer and hides the value.
func (s String) String() string {
	return redacted
}

// GoString implements fmt.GoStringer so %#v also hides the value.
func (s String) GoString() string {
	return redacted
}

// MarshalJSON hides the value from any JSON encoding.
func (s String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Raw returns the sensitive value.
func (s String) Raw() string {
	return string(s)
}

// Value implements driver.Valuer so a secret can be bound as a query
// parameter without going through Raw.
func (s String) Value() (driver.Value, error) {
	return string(s), nil
}
