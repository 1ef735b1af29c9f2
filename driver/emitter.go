package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// Emitter implements the high-level outbound operations of §4.C. Every
// public method produces exactly one protocol element via the Writer,
// except SetBlob, which follows its setBLOBVector with a pingRequest;
// def_* methods other than DefLight additionally register the property
// into the Registry.
type Emitter struct {
	w        *Writer
	registry *Registry
	blob     *BlobController
	log      *Logger
}

// NewEmitter builds an Emitter writing through w, registering definitions
// into registry, and pacing BLOB emission through blob.
func NewEmitter(w *Writer, registry *Registry, blob *BlobController, log *Logger) *Emitter {
	return &Emitter{w: w, registry: registry, blob: blob, log: log}
}

func header(tag, device, name, label string, state State, extra string) string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(tag)
	b.WriteString(attrf("device", device))
	b.WriteString(attrf("name", name))
	if label != "" {
		b.WriteString(attrf("label", label))
	}
	b.WriteString(attrf("state", state.String()))
	b.WriteString(extra)
	b.WriteString(">\n")
	return b.String()
}

func footer(tag string) string {
	return "</" + tag + ">\n"
}

func messageAttr(msg string, args []any) string {
	if msg == "" {
		return ""
	}
	return attrf("message", fmt.Sprintf(msg, args...))
}

// DefNumber emits <defNumberVector> and registers the property (§4.C).
func (e *Emitter) DefNumber(nv *NumberVector, msg string, args ...any) {
	e.registry.RegisterOnce(nv.Device, nv.Name, nv.Perm, KindNumber, nv)

	var b strings.Builder
	b.WriteString(header("defNumberVector", nv.Device, nv.Name, nv.Label, nv.State,
		attrf("perm", nv.Perm.String())+messageAttr(msg, args)))
	for _, m := range nv.Elements {
		b.WriteString("  <defNumber")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("label", m.Label))
		b.WriteString(attrf("format", m.Format))
		b.WriteString(attrf("min", formatFloat(m.Min)))
		b.WriteString(attrf("max", formatFloat(m.Max)))
		b.WriteString(attrf("step", formatFloat(m.Step)))
		b.WriteString(">")
		b.WriteString(formatFloat(m.Value))
		b.WriteString("</defNumber>\n")
	}
	b.WriteString(footer("defNumberVector"))
	e.w.Emit(b.String())
}

// DefSwitch emits <defSwitchVector> and registers the property. A
// SwitchVector carries no permission of its own, so the caller supplies
// perm; it is both emitted as the perm attribute and recorded in the
// registry (read-only switches reject every peer-originated update, same
// as any other kind).
func (e *Emitter) DefSwitch(sv *SwitchVector, perm Permission, msg string, args ...any) {
	e.registry.RegisterOnce(sv.Device, sv.Name, perm, KindSwitch, sv)

	var b strings.Builder
	b.WriteString(header("defSwitchVector", sv.Device, sv.Name, sv.Label, sv.State,
		attrf("perm", perm.String())+attrf("rule", sv.Rule.String())+messageAttr(msg, args)))
	for _, m := range sv.Elements {
		b.WriteString("  <defSwitch")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("label", m.Label))
		b.WriteString(">")
		b.WriteString(m.State.String())
		b.WriteString("</defSwitch>\n")
	}
	b.WriteString(footer("defSwitchVector"))
	e.w.Emit(b.String())
}

// DefText emits <defTextVector> and registers the property.
func (e *Emitter) DefText(tv *TextVector, msg string, args ...any) {
	e.registry.RegisterOnce(tv.Device, tv.Name, tv.Perm, KindText, tv)

	var b strings.Builder
	b.WriteString(header("defTextVector", tv.Device, tv.Name, tv.Label, tv.State,
		attrf("perm", tv.Perm.String())+messageAttr(msg, args)))
	for _, m := range tv.Elements {
		b.WriteString("  <defText")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("label", m.Label))
		b.WriteString(">")
		b.WriteString(escapeXML(m.Value))
		b.WriteString("</defText>\n")
	}
	b.WriteString(footer("defTextVector"))
	e.w.Emit(b.String())
}

// DefBlob emits <defBLOBVector> and registers the property. Blob bodies
// are not sent in a def; each member carries only its name and label.
func (e *Emitter) DefBlob(bv *BlobVector, msg string, args ...any) {
	e.registry.RegisterOnce(bv.Device, bv.Name, bv.Perm, KindBlob, bv)

	var b strings.Builder
	b.WriteString(header("defBLOBVector", bv.Device, bv.Name, bv.Label, bv.State,
		attrf("perm", bv.Perm.String())+messageAttr(msg, args)))
	for _, m := range bv.Elements {
		b.WriteString("  <defBLOB")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("label", m.Label))
		b.WriteString(">")
		b.WriteString("</defBLOB>\n")
	}
	b.WriteString(footer("defBLOBVector"))
	e.w.Emit(b.String())
}

// DefLight emits <defLightVector>. Lights are output-only: unlike every
// other def_* operation this one does not register into the sanity cache
// (§9 design note). A peer-originated update naming a light property is
// therefore rejected by the dispatcher as "not defined" — correct
// behavior, documented here rather than silently relied upon.
func (e *Emitter) DefLight(lv *LightVector, msg string, args ...any) {
	var b strings.Builder
	b.WriteString(header("defLightVector", lv.Device, lv.Name, lv.Label, lv.State,
		messageAttr(msg, args)))
	for _, m := range lv.Elements {
		b.WriteString("  <defLight")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("label", m.Label))
		b.WriteString(">")
		b.WriteString(m.State.String())
		b.WriteString("</defLight>\n")
	}
	b.WriteString(footer("defLightVector"))
	e.w.Emit(b.String())
}

// SetNumber emits <setNumberVector> with the vector's current values.
func (e *Emitter) SetNumber(nv *NumberVector, msg string, args ...any) {
	var b strings.Builder
	b.WriteString(header("setNumberVector", nv.Device, nv.Name, "", nv.State, messageAttr(msg, args)))
	for _, m := range nv.Elements {
		b.WriteString("  <oneNumber")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(">")
		b.WriteString(formatFloat(m.Value))
		b.WriteString("</oneNumber>\n")
	}
	b.WriteString(footer("setNumberVector"))
	e.w.Emit(b.String())
}

// UpdateMinMax emits <setNumberVector> echoing every member's min/max/step
// in addition to its value, distinct from SetNumber which only reports
// value (§4.C).
func (e *Emitter) UpdateMinMax(nv *NumberVector) {
	var b strings.Builder
	b.WriteString(header("setNumberVector", nv.Device, nv.Name, "", nv.State, ""))
	for _, m := range nv.Elements {
		b.WriteString("  <oneNumber")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("min", formatFloat(m.Min)))
		b.WriteString(attrf("max", formatFloat(m.Max)))
		b.WriteString(attrf("step", formatFloat(m.Step)))
		b.WriteString(">")
		b.WriteString(formatFloat(m.Value))
		b.WriteString("</oneNumber>\n")
	}
	b.WriteString(footer("setNumberVector"))
	e.w.Emit(b.String())
}

// SetSwitch emits <setSwitchVector> with the vector's current values.
func (e *Emitter) SetSwitch(sv *SwitchVector, msg string, args ...any) {
	var b strings.Builder
	b.WriteString(header("setSwitchVector", sv.Device, sv.Name, "", sv.State, messageAttr(msg, args)))
	for _, m := range sv.Elements {
		b.WriteString("  <oneSwitch")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(">")
		b.WriteString(m.State.String())
		b.WriteString("</oneSwitch>\n")
	}
	b.WriteString(footer("setSwitchVector"))
	e.w.Emit(b.String())
}

// SetText emits <setTextVector> with the vector's current values.
func (e *Emitter) SetText(tv *TextVector, msg string, args ...any) {
	var b strings.Builder
	b.WriteString(header("setTextVector", tv.Device, tv.Name, "", tv.State, messageAttr(msg, args)))
	for _, m := range tv.Elements {
		b.WriteString("  <oneText")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(">")
		b.WriteString(escapeXML(m.Value))
		b.WriteString("</oneText>\n")
	}
	b.WriteString(footer("setTextVector"))
	e.w.Emit(b.String())
}

// SetBlob emits <setBLOBVector> wrapped in the BLOB ping/ack backpressure
// scheme (§4.D):
//  1. block until any prior outstanding ping is acknowledged;
//  2. emit the element;
//  3. allocate and emit the next ping request, recording it as pending.
func (e *Emitter) SetBlob(bv *BlobVector, msg string, args ...any) error {
	if err := e.blob.WaitPingReply(nil); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(header("setBLOBVector", bv.Device, bv.Name, "", bv.State, messageAttr(msg, args)))
	for _, m := range bv.Elements {
		b.WriteString("  <oneBLOB")
		b.WriteString(attrf("name", m.Name))
		b.WriteString(attrf("size", strconv.FormatInt(m.Size, 10)))
		b.WriteString(attrf("format", m.Format))
		b.WriteString(">")
		b.WriteString(encodeBase64(m.Data))
		b.WriteString("</oneBLOB>\n")
	}
	b.WriteString(footer("setBLOBVector"))
	e.w.Emit(b.String())

	id := e.blob.BeginPing()
	e.w.Emit(fmt.Sprintf("<pingRequest uid=\"SetBLOB/%d\"/>\n", id))
	return nil
}

// Message emits a <message> element, optionally scoped to a device.
func (e *Emitter) Message(device string, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("<message")
	if device != "" {
		b.WriteString(attrf("device", device))
	}
	b.WriteString(messageAttr(msg, args))
	b.WriteString("/>\n")
	e.w.Emit(b.String())
}

// DeleteProperty emits <delProperty>. An empty name deletes the whole
// device from the peer's view.
func (e *Emitter) DeleteProperty(device, name string, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("<delProperty")
	b.WriteString(attrf("device", device))
	if name != "" {
		b.WriteString(attrf("name", name))
	}
	b.WriteString(messageAttr(msg, args))
	b.WriteString("/>\n")
	e.w.Emit(b.String())
}

// SnoopRequest emits <getProperties> scoped to dev (and optionally a
// single property), requesting definitions from another driver via the
// server.
func (e *Emitter) SnoopRequest(device, property string) {
	var b strings.Builder
	b.WriteString("<getProperties")
	b.WriteString(attrf("version", protocolVersionString))
	b.WriteString(attrf("device", device))
	if property != "" {
		b.WriteString(attrf("name", property))
	}
	b.WriteString("/>\n")
	e.w.Emit(b.String())
}

// BlobPolicy is the enableBLOB policy requested of the server for a snoop
// feed.
type BlobPolicy int

const (
	BlobNever BlobPolicy = iota
	BlobAlso
	BlobOnly
)

func (p BlobPolicy) String() string {
	switch p {
	case BlobNever:
		return "Never"
	case BlobAlso:
		return "Also"
	case BlobOnly:
		return "Only"
	default:
		return "Never"
	}
}

// SnoopBlobPolicy emits <enableBLOB> for the given device/property.
func (e *Emitter) SnoopBlobPolicy(device, property string, policy BlobPolicy) {
	var b strings.Builder
	b.WriteString("<enableBLOB")
	b.WriteString(attrf("device", device))
	if property != "" {
		b.WriteString(attrf("name", property))
	}
	b.WriteString(">")
	b.WriteString(policy.String())
	b.WriteString("</enableBLOB>\n")
	e.w.Emit(b.String())
}

// ReDefProperty re-emits the def_<kind> element for a single already-
// registered property, used by the dispatcher to answer a late-joiner's
// scoped getProperties (§4.F classification 1).
func (e *Emitter) ReDefProperty(entry *PropertyEntry) {
	switch entry.Kind {
	case KindNumber:
		e.DefNumber(entry.Back.(*NumberVector), "")
	case KindSwitch:
		sv := entry.Back.(*SwitchVector)
		e.DefSwitch(sv, entry.Perm, "")
	case KindText:
		e.DefText(entry.Back.(*TextVector), "")
	case KindBlob:
		e.DefBlob(entry.Back.(*BlobVector), "")
	}
}
