package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var flagPattern = regexp.MustCompile(`^--?[A-Za-z0-9][A-Za-z0-9-]*$`)

// Option is a single scanner flag. A nil Value marks a boolean flag that
// takes no argument.
type Option struct {
	Flag  string
	Value *string
}

// Options is an ordered set of scanner flags. Order is preserved through
// JSON encoding and flags are unique.
type Options []Option

// OptionValue returns a pointer to s for use as an Option value.
func OptionValue(s string) *string {
	return &s
}

// Set replaces the value of an existing flag in place or appends a new one.
func (o Options) Set(flag string, value *string) Options {
	for i := range o {
		if o[i].Flag == flag {
			o[i].Value = value
			return o
		}
	}
	return append(o, Option{Flag: flag, Value: value})
}

// Get returns the value of flag and whether the flag is present.
func (o Options) Get(flag string) (*string, bool) {
	for _, opt := range o {
		if opt.Flag == flag {
			return opt.Value, true
		}
	}
	return nil, false
}

// Args flattens the options into command-line arguments in order.
func (o Options) Args() []string {
	args := make([]string, 0, len(o)*2)
	for _, opt := range o {
		args = append(args, opt.Flag)
		if opt.Value != nil {
			args = append(args, *opt.Value)
		}
	}
	return args
}

// Validate checks that every flag looks like a command-line switch and
// that no flag appears twice.
func (o Options) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(o))
	for _, opt := range o {
		if !flagPattern.MatchString(opt.Flag) {
			errs = append(errs, fmt.Errorf("invalid flag %q", opt.Flag))
			continue
		}
		if seen[opt.Flag] {
			errs = append(errs, fmt.Errorf("duplicate flag %q", opt.Flag))
		}
		seen[opt.Flag] = true
		if opt.Value != nil && strings.ContainsAny(*opt.Value, "\x00\n\r") {
			errs = append(errs, fmt.Errorf("invalid value for flag %q", opt.Flag))
		}
	}
	return errors.Join(errs...)
}

// MarshalJSON encodes the options as a JSON object in flag order.
func (o Options) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, opt := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(opt.Flag)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if opt.Value == nil {
			buf.WriteString("null")
			continue
		}
		val, err := json.Marshal(*opt.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping key order. Null values become
// boolean flags, numbers and booleans keep their literal text, and a
// repeated key overwrites the earlier value in place.
func (o *Options) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("options must be a JSON object")
	}

	var opts Options
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		flag, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected option key %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decoding value for %q: %w", flag, err)
		}
		value, err := optionValue(raw)
		if err != nil {
			return fmt.Errorf("option %q: %w", flag, err)
		}
		opts = opts.Set(flag, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = opts
	return nil
}

func optionValue(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return nil, nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &s, nil
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		return nil, errors.New("value must be a string, number, boolean or null")
	default:
		s := string(trimmed)
		return &s, nil
	}
}
