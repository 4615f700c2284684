package flowrec

import (
	"fmt"
	"strconv"
	"strings"
)

// Field identifies one sortable field of a Record.
type Field int

const (
	FieldSrcAddr Field = iota + 1
	FieldDstAddr
	FieldSrcPort
	FieldDstPort
	FieldProto
	FieldFlowType
	FieldSensor
	FieldInput
	FieldOutput
	FieldApplication
	FieldNextHop
	FieldStartTime
	FieldElapsed
)

var fieldNames = map[Field]string{
	FieldSrcAddr:     "sip",
	FieldDstAddr:     "dip",
	FieldSrcPort:     "sport",
	FieldDstPort:     "dport",
	FieldProto:       "proto",
	FieldFlowType:    "type",
	FieldSensor:      "sensor",
	FieldInput:       "input",
	FieldOutput:      "output",
	FieldApplication: "application",
	FieldNextHop:     "nhip",
	FieldStartTime:   "stime",
	FieldElapsed:     "elapsed",
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// ParseField accepts a field name or its numeric alias.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range fieldNames {
		if s == name {
			return f, nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		f := Field(n)
		if _, ok := fieldNames[f]; ok {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

// ParseFields parses a comma-separated list of field names or numeric
// aliases.
func ParseFields(s string) ([]Field, error) {
	if s == "" {
		return nil, nil
	}
	var fields []Field
	for _, part := range strings.Split(s, ",") {
		f, err := ParseField(part)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// DefaultKey returns the session key fields in their canonical order.
// Start time and elapsed are not part of the session key; callers
// append them when they want a total time ordering.
func DefaultKey() []Field {
	return []Field{
		FieldSrcAddr,
		FieldDstAddr,
		FieldSrcPort,
		FieldDstPort,
		FieldProto,
		FieldFlowType,
		FieldSensor,
		FieldInput,
		FieldOutput,
		FieldApplication,
		FieldNextHop,
	}
}

// KeyIgnoring returns the default session key with the given fields
// removed.  Only session key fields may be ignored.
func KeyIgnoring(ignore []Field) ([]Field, error) {
	drop := make(map[Field]bool, len(ignore))
	for _, f := range ignore {
		switch f {
		case FieldStartTime, FieldElapsed:
			return nil, fmt.Errorf("field %s cannot be ignored", f)
		}
		drop[f] = true
	}
	var key []Field
	for _, f := range DefaultKey() {
		if !drop[f] {
			key = append(key, f)
		}
	}
	return key, nil
}
