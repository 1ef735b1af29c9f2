package driver

import (
	"bytes"
	"strings"
	"testing"
)

type recordingCallbacks struct {
	newNumberCalls int
	newTextCalls   int
	newSwitchCalls int
	newBlobCalls   int
	lastUpdates    []NumberUpdate
}

func (r *recordingCallbacks) OnGetProperties(device string) {}
func (r *recordingCallbacks) OnNewNumber(device, name string, updates []NumberUpdate) {
	r.newNumberCalls++
	r.lastUpdates = updates
}
func (r *recordingCallbacks) OnNewSwitch(device, name string, updates []SwitchUpdate) { r.newSwitchCalls++ }
func (r *recordingCallbacks) OnNewText(device, name string, updates []TextUpdate)     { r.newTextCalls++ }
func (r *recordingCallbacks) OnNewBlob(device, name string, updates []BlobUpdate)     { r.newBlobCalls++ }
func (r *recordingCallbacks) OnSnoop(el *RawElement)                                  {}

func newTestDispatcher(t *testing.T) (*Dispatcher, *Registry, *Emitter, *bytes.Buffer, *recordingCallbacks) {
	t.Helper()
	var out bytes.Buffer
	w := NewWriter(&out, func(err error) { t.Fatalf("unexpected writer error: %v", err) })
	reg := NewRegistry()
	blob := NewBlobController()
	log := NewLogger("test", false)
	em := NewEmitter(w, reg, blob, log)
	cb := &recordingCallbacks{}
	d := NewDispatcher(reg, em, blob, cb, log)
	t.Cleanup(d.Close)
	return d, reg, em, &out, cb
}

func numberElement(device, name, member, value string) *RawElement {
	return &RawElement{
		Tag:   "newNumberVector",
		Attrs: map[string]string{"device": device, "name": name},
		Children: []RawElement{
			{Tag: "oneNumber", Attrs: map[string]string{"name": member}, Body: value},
		},
	}
}

func TestDispatchRejectsReadOnlyProperty(t *testing.T) {
	d, reg, _, out, cb := newTestDispatcher(t)
	reg.RegisterOnce("Cam", "DRIVER_INFO", ReadOnly, KindText,
		&TextVector{Elements: []TextMember{{Name: "VERSION", Value: "1.0"}}})

	el := &RawElement{
		Tag:   "newTextVector",
		Attrs: map[string]string{"device": "Cam", "name": "DRIVER_INFO"},
		Children: []RawElement{
			{Tag: "oneText", Attrs: map[string]string{"name": "VERSION"}, Body: "evil"},
		},
	}
	err := d.Dispatch(el)
	if err == nil {
		t.Fatalf("expected rejection for a read-only property")
	}
	if !strings.Contains(err.Error(), "Cannot set read-only property DRIVER_INFO") {
		t.Fatalf("unexpected error message: %v", err)
	}
	if cb.newTextCalls != 0 {
		t.Fatalf("on_new_text must not be invoked for a read-only property")
	}
	if !strings.Contains(out.String(), "Cannot set read-only property DRIVER_INFO") {
		t.Fatalf("expected an outbound message describing the rejection, got %q", out.String())
	}
}

func TestDispatchRejectsUndefinedProperty(t *testing.T) {
	d, _, _, _, cb := newTestDispatcher(t)
	err := d.Dispatch(numberElement("Mount", "GHOST", "EXP", "5"))
	if err == nil {
		t.Fatalf("expected rejection for an undefined property")
	}
	want := "Property GHOST is not defined in Mount."
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if cb.newNumberCalls != 0 {
		t.Fatalf("on_new_number must not be invoked for an undefined property")
	}
}

func TestDispatchLateJoinerDefinitionEcho(t *testing.T) {
	d, _, em, out, _ := newTestDispatcher(t)
	em.DefSwitch(&SwitchVector{
		vectorHeader: vectorHeader{Device: "Mount", Name: "CONNECTION"},
		Rule:         OneOfMany,
		Elements: []SwitchMember{
			{Name: "CONNECT", State: Off},
			{Name: "DISCONNECT", State: On},
		},
	}, ReadWrite, "")
	out.Reset()

	el := &RawElement{
		Tag:   "getProperties",
		Attrs: map[string]string{"version": "1.7", "device": "Mount", "name": "CONNECTION"},
	}
	if err := d.Dispatch(el); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out.String()
	if strings.Count(got, "<defSwitchVector") != 1 {
		t.Fatalf("expected exactly one defSwitchVector echo, got %q", got)
	}
	if !strings.Contains(got, "CONNECT") || !strings.Contains(got, "DISCONNECT") {
		t.Fatalf("expected both switch elements echoed, got %q", got)
	}
}

func TestDispatchFatalVersionMismatch(t *testing.T) {
	d, _, _, _, _ := newTestDispatcher(t)
	var exitCode int
	var exited bool
	d.SetExitFunc(func(code int) {
		exited = true
		exitCode = code
	})

	el := &RawElement{Tag: "getProperties", Attrs: map[string]string{"version": "9.9"}}
	if err := d.Dispatch(el); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exited || exitCode != 1 {
		t.Fatalf("expected a fatal exit(1) for an incompatible version, got exited=%v code=%d", exited, exitCode)
	}
}

func TestDispatchEmptyBatchDoesNotInvokeCallback(t *testing.T) {
	d, reg, _, out, cb := newTestDispatcher(t)
	reg.RegisterOnce("Mount", "EXP", ReadWrite, KindNumber,
		&NumberVector{Elements: []NumberMember{{Name: "EXP", Min: 0, Max: 10}}})

	el := &RawElement{
		Tag:   "newNumberVector",
		Attrs: map[string]string{"device": "Mount", "name": "EXP"},
		Children: []RawElement{
			{Tag: "oneNumber", Attrs: map[string]string{"name": "EXP"}, Body: "not-a-number"},
		},
	}
	if err := d.Dispatch(el); err == nil {
		t.Fatalf("expected an empty-batch error")
	}
	if cb.newNumberCalls != 0 {
		t.Fatalf("callback must not fire for an all-invalid batch")
	}
	if !strings.Contains(out.String(), "<message") {
		t.Fatalf("expected an informational message for the empty batch, got %q", out.String())
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	d, _, _, _, _ := newTestDispatcher(t)
	err := d.Dispatch(&RawElement{Tag: "somethingWeird"})
	de, ok := err.(*DispatchError)
	if !ok || de.ErrKind != KindUnknownCommand {
		t.Fatalf("expected a KindUnknownCommand error, got %v", err)
	}
}

func TestDispatchValidNumberUpdateInvokesCallback(t *testing.T) {
	d, reg, _, _, cb := newTestDispatcher(t)
	reg.RegisterOnce("Mount", "EXP", ReadWrite, KindNumber,
		&NumberVector{Elements: []NumberMember{{Name: "EXP", Min: 0, Max: 10}}})

	if err := d.Dispatch(numberElement("Mount", "EXP", "EXP", "5")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.newNumberCalls != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", cb.newNumberCalls)
	}
	if len(cb.lastUpdates) != 1 || cb.lastUpdates[0].Value != 5 {
		t.Fatalf("expected decoded value 5, got %+v", cb.lastUpdates)
	}
}

func TestParseSexagesimal(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"5", 5},
		{"1:30:00", 1.5},
		{"-1:30:00", -1.5},
		{"1 30 0", 1.5},
	}
	for _, c := range cases {
		got, err := parseSexagesimal(c.in)
		if err != nil {
			t.Fatalf("parseSexagesimal(%q): unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("parseSexagesimal(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
