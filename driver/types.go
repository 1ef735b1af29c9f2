// Package driver implements the driver-side runtime of an instrument-control
// protocol: the library linked into every driver process that serializes
// outbound property definitions/updates, parses inbound XML commands, and
// enforces the permission and typed-value invariants a driver author must
// not violate.
package driver

import "fmt"

// Kind identifies the type of a vector property.
type Kind int

const (
	KindNumber Kind = iota
	KindSwitch
	KindText
	KindLight
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "Number"
	case KindSwitch:
		return "Switch"
	case KindText:
		return "Text"
	case KindLight:
		return "Light"
	case KindBlob:
		return "Blob"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Permission is the access mode a vector property is exposed under.
type Permission int

const (
	ReadOnly Permission = iota
	WriteOnly
	ReadWrite
)

func (p Permission) String() string {
	switch p {
	case ReadOnly:
		return "ro"
	case WriteOnly:
		return "wo"
	case ReadWrite:
		return "rw"
	default:
		return "unknown"
	}
}

// State is the driver-reported health of a vector property.
type State int

const (
	Idle State = iota
	Ok
	Busy
	Alert
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Ok:
		return "Ok"
	case Busy:
		return "Busy"
	case Alert:
		return "Alert"
	default:
		return "Unknown"
	}
}

// SwitchRule constrains how many elements of a switch vector may be On at
// once.
type SwitchRule int

const (
	OneOfMany SwitchRule = iota
	AtMostOne
	AnyOfMany
)

func (r SwitchRule) String() string {
	switch r {
	case OneOfMany:
		return "OneOfMany"
	case AtMostOne:
		return "AtMostOne"
	case AnyOfMany:
		return "AnyOfMany"
	default:
		return "Unknown"
	}
}

// SwitchState is the On/Off value of a single switch element.
type SwitchState int

const (
	Off SwitchState = iota
	On
)

func (s SwitchState) String() string {
	if s == On {
		return "On"
	}
	return "Off"
}

// NumberMember is one element of a NumberVector.
type NumberMember struct {
	Name   string
	Label  string
	Value  float64
	Min    float64
	Max    float64
	Step   float64
	Format string
}

// SwitchMember is one element of a SwitchVector.
type SwitchMember struct {
	Name  string
	Label string
	State SwitchState
}

// TextMember is one element of a TextVector.
type TextMember struct {
	Name  string
	Label string
	Value string
}

// BlobMember is one element of a BlobVector.
type BlobMember struct {
	Name    string
	Label   string
	Format  string
	Size    int64
	BlobLen int64
	Data    []byte
}

// LightMember is one element of a LightVector. Lights are output-only.
type LightMember struct {
	Name  string
	Label string
	State State
}

// vectorHeader carries the fields common to every vector property kind.
type vectorHeader struct {
	Device string
	Name   string
	Label  string
	State  State
}

// NumberVector is a named, ordered collection of number elements belonging
// to a device.
type NumberVector struct {
	vectorHeader
	Perm     Permission
	Elements []NumberMember
}

// SwitchVector is a named, ordered collection of switch elements belonging
// to a device.
type SwitchVector struct {
	vectorHeader
	Rule     SwitchRule
	Elements []SwitchMember
}

// TextVector is a named, ordered collection of text elements belonging to a
// device.
type TextVector struct {
	vectorHeader
	Perm     Permission
	Elements []TextMember
}

// BlobVector is a named, ordered collection of BLOB elements belonging to a
// device.
type BlobVector struct {
	vectorHeader
	Perm     Permission
	Elements []BlobMember
}

// LightVector is a named, ordered collection of light elements belonging to
// a device. Lights are read-only from the peer's perspective and are never
// registered in the sanity cache (see driver/emitter.go DefLight).
type LightVector struct {
	vectorHeader
	Elements []LightMember
}

func (v *NumberVector) findIndex(name string) int {
	for i := range v.Elements {
		if v.Elements[i].Name == name {
			return i
		}
	}
	return -1
}

func (v *SwitchVector) findIndex(name string) int {
	for i := range v.Elements {
		if v.Elements[i].Name == name {
			return i
		}
	}
	return -1
}

func (v *TextVector) findIndex(name string) int {
	for i := range v.Elements {
		if v.Elements[i].Name == name {
			return i
		}
	}
	return -1
}

func (v *BlobVector) findIndex(name string) int {
	for i := range v.Elements {
		if v.Elements[i].Name == name {
			return i
		}
	}
	return -1
}
