package driver

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xbuma00/indi/ratelimiter"
)

// Callbacks are the host-provided driver hooks the dispatcher invokes.
// Their implementations are out of this module's scope (§1); the
// dispatcher only guarantees when and with what arguments they are
// called.
type Callbacks interface {
	OnGetProperties(device string)
	OnNewNumber(device, name string, updates []NumberUpdate)
	OnNewSwitch(device, name string, updates []SwitchUpdate)
	OnNewText(device, name string, updates []TextUpdate)
	OnNewBlob(device, name string, updates []BlobUpdate)
	OnSnoop(el *RawElement)
}

// DispatchErrorKind classifies a dispatch failure per §7's severity
// ladder (fatal terminations are handled separately via os.Exit, not
// through this type).
type DispatchErrorKind int

const (
	KindReject DispatchErrorKind = iota
	KindInvalidMember
	KindEmptyBatch
	KindUnknownCommand
)

// DispatchError is returned by Dispatch for every non-fatal failure mode.
type DispatchError struct {
	ErrKind DispatchErrorKind
	Msg     string
}

func (e *DispatchError) Error() string { return e.Msg }

func reject(format string, args ...any) *DispatchError {
	return &DispatchError{ErrKind: KindReject, Msg: fmt.Sprintf(format, args...)}
}

// Dispatcher classifies and processes one inbound XML element at a time
// (§4.F). It holds the registry and emitter it needs to perform sanity
// checks and to answer with error messages.
type Dispatcher struct {
	registry  *Registry
	emitter   *Emitter
	blob      *BlobController
	callbacks Callbacks
	log       *Logger
	limiter   *ratelimiter.Ratelimiter

	exitFunc func(code int) // overridable in tests
}

// NewDispatcher wires a Dispatcher from its collaborators.
func NewDispatcher(registry *Registry, emitter *Emitter, blob *BlobController, callbacks Callbacks, log *Logger) *Dispatcher {
	limiter := new(ratelimiter.Ratelimiter)
	limiter.Init()
	return &Dispatcher{
		registry:  registry,
		emitter:   emitter,
		blob:      blob,
		callbacks: callbacks,
		log:       log,
		limiter:   limiter,
		exitFunc:  os.Exit,
	}
}

// Close releases the dispatcher's background resources (its flood-guard
// ratelimiter's garbage collector).
func (d *Dispatcher) Close() {
	d.limiter.Close()
}

// SetExitFunc overrides the function invoked on a fatal version mismatch;
// intended for tests that need to observe the fatal path without actually
// terminating the process.
func (d *Dispatcher) SetExitFunc(f func(code int)) {
	d.exitFunc = f
}

var snoopTags = map[string]bool{
	"setNumberVector": true, "setTextVector": true, "setLightVector": true,
	"setSwitchVector": true, "setBLOBVector": true,
	"defNumberVector": true, "defTextVector": true, "defLightVector": true,
	"defSwitchVector": true, "defBLOBVector": true,
	"message": true, "delProperty": true,
}

// Dispatch classifies el per §4.F and acts on it. A returned error is
// always non-fatal (KindReject/KindInvalidMember/KindEmptyBatch/
// KindUnknownCommand); a fatal version mismatch terminates the process
// directly via the Dispatcher's exitFunc instead of returning.
func (d *Dispatcher) Dispatch(el *RawElement) error {
	if el.Tag == "pingReply" {
		d.handlePingReply(el)
		return nil
	}

	if el.Tag == "getProperties" {
		return d.handleGetProperties(el)
	}

	if snoopTags[el.Tag] {
		d.callbacks.OnSnoop(el)
		return nil
	}

	switch el.Tag {
	case "newNumberVector":
		return d.handleNewNumber(el)
	case "newSwitchVector":
		return d.handleNewSwitch(el)
	case "newTextVector":
		return d.handleNewText(el)
	case "newBLOBVector":
		return d.handleNewBlob(el)
	}

	return &DispatchError{ErrKind: KindUnknownCommand, Msg: fmt.Sprintf("Unknown command: %s", el.Tag)}
}

func (d *Dispatcher) handlePingReply(el *RawElement) {
	uid, _ := el.Attr("uid")
	const prefix = "SetBLOB/"
	if !strings.HasPrefix(uid, prefix) {
		return
	}
	id, err := strconv.ParseUint(uid[len(prefix):], 10, 64)
	if err != nil {
		return
	}
	d.blob.NotifyPingReply(id)
}

func (d *Dispatcher) handleGetProperties(el *RawElement) error {
	versionStr, ok := el.Attr("version")
	if !ok {
		return reject("getProperties missing required version attribute")
	}
	version, err := strconv.ParseFloat(versionStr, 64)
	if err != nil {
		return reject("getProperties has malformed version attribute %q", versionStr)
	}
	if version > ProtocolVersion {
		d.log.Errorf("client version %s > %s", versionStr, protocolVersionString)
		fmt.Fprintf(os.Stderr, "client version %s > %s\n", versionStr, protocolVersionString)
		d.exitFunc(1)
		return nil
	}

	device, hasDevice := el.Attr("device")
	name, hasName := el.Attr("name")
	if hasDevice && hasName {
		if entry := d.registry.Lookup(device, name); entry != nil {
			d.emitter.ReDefProperty(entry)
			return nil
		}
	}

	d.callbacks.OnGetProperties(device)
	return nil
}

func deviceAndName(el *RawElement) (device, name string, err error) {
	device, ok := el.Attr("device")
	if !ok {
		return "", "", reject("%s missing required device attribute", el.Tag)
	}
	name, ok = el.Attr("name")
	if !ok {
		return "", "", reject("%s missing required name attribute", el.Tag)
	}
	return device, name, nil
}

// checkWritable resolves (device, name) against the registry and enforces
// the "not defined" / "read-only" rejections of §4.F classification 3.
func (d *Dispatcher) checkWritable(device, name string) (*PropertyEntry, error) {
	entry := d.registry.Lookup(device, name)
	if entry == nil {
		if d.limiter.Allow(device) {
			d.emitter.Message(device, "Property %s is not defined in %s.", name, device)
		}
		return nil, reject("Property %s is not defined in %s.", name, device)
	}
	if entry.Perm == ReadOnly {
		if d.limiter.Allow(device) {
			d.emitter.Message(device, "Cannot set read-only property %s", name)
		}
		return nil, reject("Cannot set read-only property %s", name)
	}
	return entry, nil
}

func (d *Dispatcher) handleNewNumber(el *RawElement) error {
	device, name, err := deviceAndName(el)
	if err != nil {
		return err
	}
	entry, err := d.checkWritable(device, name)
	if err != nil {
		return err
	}
	if _, ok := entry.Back.(*NumberVector); !ok {
		return reject("Property %s in %s is not a number vector", name, device)
	}

	var updates []NumberUpdate
	for _, child := range el.Children {
		if child.Tag != "oneNumber" {
			continue
		}
		memberName, ok := child.Attr("name")
		if !ok {
			continue
		}
		value, perr := parseSexagesimal(child.Body)
		if perr != nil {
			d.emitter.Message(device, "%s: invalid number %q for %s", name, child.Body, memberName)
			continue
		}
		updates = append(updates, NumberUpdate{Name: memberName, Value: value})
	}
	if len(updates) == 0 {
		d.emitter.Message(device, "%s: no valid members in update", name)
		return &DispatchError{ErrKind: KindEmptyBatch, Msg: "empty batch"}
	}
	d.callbacks.OnNewNumber(device, name, updates)
	return nil
}

func (d *Dispatcher) handleNewSwitch(el *RawElement) error {
	device, name, err := deviceAndName(el)
	if err != nil {
		return err
	}
	entry, err := d.checkWritable(device, name)
	if err != nil {
		return err
	}
	if _, ok := entry.Back.(*SwitchVector); !ok {
		return reject("Property %s in %s is not a switch vector", name, device)
	}

	var updates []SwitchUpdate
	for _, child := range el.Children {
		if child.Tag != "oneSwitch" {
			continue
		}
		memberName, ok := child.Attr("name")
		if !ok {
			continue
		}
		state, serr := parseSwitchState(child.Body)
		if serr != nil {
			d.emitter.Message(device, "%s: invalid switch state %q for %s", name, child.Body, memberName)
			continue
		}
		updates = append(updates, SwitchUpdate{Name: memberName, State: state})
	}
	if len(updates) == 0 {
		d.emitter.Message(device, "%s: no valid members in update", name)
		return &DispatchError{ErrKind: KindEmptyBatch, Msg: "empty batch"}
	}
	d.callbacks.OnNewSwitch(device, name, updates)
	return nil
}

func (d *Dispatcher) handleNewText(el *RawElement) error {
	device, name, err := deviceAndName(el)
	if err != nil {
		return err
	}
	entry, err := d.checkWritable(device, name)
	if err != nil {
		return err
	}
	if _, ok := entry.Back.(*TextVector); !ok {
		return reject("Property %s in %s is not a text vector", name, device)
	}

	var updates []TextUpdate
	for _, child := range el.Children {
		if child.Tag != "oneText" {
			continue
		}
		memberName, ok := child.Attr("name")
		if !ok {
			continue
		}
		updates = append(updates, TextUpdate{Name: memberName, Text: child.Body})
	}
	if len(updates) == 0 {
		d.emitter.Message(device, "%s: no valid members in update", name)
		return &DispatchError{ErrKind: KindEmptyBatch, Msg: "empty batch"}
	}
	d.callbacks.OnNewText(device, name, updates)
	return nil
}

func (d *Dispatcher) handleNewBlob(el *RawElement) error {
	device, name, err := deviceAndName(el)
	if err != nil {
		return err
	}
	entry, err := d.checkWritable(device, name)
	if err != nil {
		return err
	}
	if _, ok := entry.Back.(*BlobVector); !ok {
		return reject("Property %s in %s is not a blob vector", name, device)
	}

	var updates []BlobUpdate
	for _, child := range el.Children {
		if child.Tag != "oneBLOB" {
			continue
		}
		memberName, ok := child.Attr("name")
		if !ok {
			continue
		}
		format, ok := child.Attr("format")
		if !ok {
			d.emitter.Message(device, "%s: oneBLOB for %s missing format", name, memberName)
			continue
		}
		sizeStr, ok := child.Attr("size")
		if !ok {
			d.emitter.Message(device, "%s: oneBLOB for %s missing size", name, memberName)
			continue
		}
		size, serr := strconv.ParseInt(sizeStr, 10, 64)
		if serr != nil {
			d.emitter.Message(device, "%s: oneBLOB for %s has malformed size", name, memberName)
			continue
		}

		body := child.Body
		if enclenStr, ok := child.Attr("enclen"); ok {
			enclen, eerr := strconv.Atoi(enclenStr)
			if eerr != nil || enclen < 0 || enclen > len(body) {
				d.emitter.Message(device, "%s: oneBLOB for %s has malformed enclen", name, memberName)
				continue
			}
			body = body[:enclen]
		}

		data, derr := decodeBase64(body)
		if derr != nil {
			d.emitter.Message(device, "%s: oneBLOB for %s failed to decode", name, memberName)
			continue
		}

		updates = append(updates, BlobUpdate{
			Name:    memberName,
			Size:    size,
			BlobLen: int64(len(body)),
			Data:    data,
			Format:  format,
		})
	}
	if len(updates) == 0 {
		d.emitter.Message(device, "%s: no valid members in update", name)
		return &DispatchError{ErrKind: KindEmptyBatch, Msg: "empty batch"}
	}
	d.callbacks.OnNewBlob(device, name, updates)
	return nil
}

// parseSexagesimal parses a oneNumber body in the wire's sexagesimal or
// plain-decimal form: "deg[:min[:sec]]" or "deg[ min[ sec]]", or a plain
// decimal. Negative values negate the whole composed magnitude.
func parseSexagesimal(body string) (float64, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return 0, fmt.Errorf("empty numeric body")
	}

	fields := strings.Fields(strings.ReplaceAll(body, ":", " "))

	if len(fields) <= 1 {
		return strconv.ParseFloat(body, 64)
	}

	negative := strings.HasPrefix(fields[0], "-")
	deg, err := strconv.ParseFloat(strings.TrimPrefix(fields[0], "-"), 64)
	if err != nil {
		return 0, err
	}

	var minutes, seconds float64
	if len(fields) > 1 {
		if minutes, err = strconv.ParseFloat(fields[1], 64); err != nil {
			return 0, err
		}
	}
	if len(fields) > 2 {
		if seconds, err = strconv.ParseFloat(fields[2], 64); err != nil {
			return 0, err
		}
	}

	value := deg + minutes/60 + seconds/3600
	if negative {
		value = -value
	}
	return value, nil
}

func parseSwitchState(body string) (SwitchState, error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "On") {
		return On, nil
	}
	if body == "Off" {
		return Off, nil
	}
	return Off, fmt.Errorf("invalid switch state %q", body)
}
