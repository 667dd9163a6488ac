// Package channel validates channel records: the backend-agnostic
// envelope (type, alias, name, description, priority, manual,
// removable) plus a free-form backend-specific payload (e.g. baseurl
// for rpm-md/arch/deb channels). Parsing reads one key at a time,
// returns on the first type error encountered, and accumulates every
// unrecognized key into the backend payload.
package channel

import (
	"github.com/Masterminds/semver"

	"github.com/packagecore/pkgcore/perrors"
)

// backendsRequiringBaseURL are the channel types that cannot work
// without a baseurl; "system" (a local installed-package database) has
// none.
var backendsRequiringBaseURL = map[string]bool{
	"rpm-md": true,
	"arch":   true,
	"deb":    true,
}

// Record is one channel's configuration, as read from sysconf's
// "channels" tree.
type Record struct {
	Type        string
	Alias       string
	Name        string
	Description string
	Priority    int
	Manual      bool
	Removable   bool

	// Backend carries type-specific fields (baseurl, and optionally a
	// format-version the loader requires to recognize the channel's
	// metadata layout).
	Backend map[string]interface{}
}

// FromMap parses a channel record out of a generic dict, as read from
// sysconf.Store.Channels()'s per-alias map. It returns ChannelDataError
// on a non-integer priority or any field of the wrong type.
func FromMap(alias string, m map[string]interface{}) (Record, error) {
	r := Record{Alias: alias, Backend: map[string]interface{}{}}

	var err error
	if r.Type, err = stringField(m, "type", ""); err != nil {
		return Record{}, perrors.NewChannelDataError(alias, err)
	}
	if r.Name, err = stringField(m, "name", ""); err != nil {
		return Record{}, perrors.NewChannelDataError(alias, err)
	}
	if r.Description, err = stringField(m, "description", ""); err != nil {
		return Record{}, perrors.NewChannelDataError(alias, err)
	}
	if r.Priority, err = intField(m, "priority", 0); err != nil {
		return Record{}, perrors.NewChannelDataError(alias, err)
	}
	if r.Manual, err = boolField(m, "manual", false); err != nil {
		return Record{}, perrors.NewChannelDataError(alias, err)
	}
	if r.Removable, err = boolField(m, "removable", true); err != nil {
		return Record{}, perrors.NewChannelDataError(alias, err)
	}

	for k, v := range m {
		switch k {
		case "type", "alias", "name", "description", "priority", "manual", "removable":
			continue
		default:
			r.Backend[k] = v
		}
	}

	if err := Validate(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// ToMap renders r back into the generic dict sysconf.Store.SetChannel
// expects.
func (r Record) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"type":        r.Type,
		"name":        r.Name,
		"description": r.Description,
		"priority":    int64(r.Priority),
		"manual":      r.Manual,
		"removable":   r.Removable,
	}
	for k, v := range r.Backend {
		m[k] = v
	}
	return m
}

// Validate rejects a channel record missing a required baseurl, or
// carrying a malformed format-version. Non-integer priorities are
// rejected earlier, by intField during FromMap.
func Validate(r Record) error {
	if backendsRequiringBaseURL[r.Type] {
		base, _ := r.Backend["baseurl"].(string)
		if base == "" {
			return perrors.NewChannelDataError(r.Alias, errMissingBaseURL(r.Type))
		}
	}
	if fv, ok := r.Backend["format-version"]; ok {
		s, ok := fv.(string)
		if !ok {
			return perrors.NewChannelDataError(r.Alias, errBadFormatVersion(fv))
		}
		if _, err := semver.NewVersion(s); err != nil {
			return perrors.NewChannelDataError(r.Alias, err)
		}
	}
	return nil
}

type missingBaseURLError struct{ channelType string }

func (e missingBaseURLError) Error() string {
	return "channel type " + e.channelType + " requires a baseurl"
}

func errMissingBaseURL(channelType string) error { return missingBaseURLError{channelType: channelType} }

type badFormatVersionError struct{ v interface{} }

func (e badFormatVersionError) Error() string { return "format-version must be a string" }

func errBadFormatVersion(v interface{}) error { return badFormatVersionError{v: v} }

func stringField(m map[string]interface{}, key, def string) (string, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(key, "string", v)
	}
	return s, nil
}

func intField(m map[string]interface{}, key string, def int) (int, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case int:
		return n, nil
	default:
		return 0, typeError(key, "integer", v)
	}
}

func boolField(m map[string]interface{}, key string, def bool) (bool, error) {
	v, ok := m[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, typeError(key, "boolean", v)
	}
	return b, nil
}

type fieldTypeError struct {
	key, want string
	got       interface{}
}

func (e fieldTypeError) Error() string {
	return "invalid type for " + e.key + ", expected " + e.want
}

func typeError(key, want string, got interface{}) error {
	return fieldTypeError{key: key, want: want, got: got}
}
