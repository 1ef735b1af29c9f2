package driver

import "sync"

// This file is the protocol façade of §4.H: a stable set of free-standing
// operations driver code can call from anywhere, wired onto a single
// package-level Driver instance. It mirrors the teacher's export.go,
// which exposes Device/Peer state through free functions rather than
// requiring every caller to thread a *Device through their own code.

var (
	defaultMu      sync.RWMutex
	defaultDriver  *Driver
	executableName string
)

// Init installs d as the package-level default Driver every free function
// below operates on. A driver binary calls this once at startup.
func Init(d *Driver) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultDriver = d
}

func current() *Driver {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultDriver
}

// SetExecutableName records the driver's own executable name, carried
// for diagnostics (§4.H).
func SetExecutableName(name string) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	executableName = name
}

// ExecutableName returns the name last recorded by SetExecutableName.
func ExecutableName() string {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return executableName
}

// SetVerbose toggles diagnostic echoing of inbound elements on the
// default Driver (§4.H).
func SetVerbose(v bool) {
	if d := current(); d != nil {
		d.SetVerbose(v)
	}
}

// ========= outbound operations =========

func DefNumber(nv *NumberVector, msg string, args ...any) {
	current().Emitter().DefNumber(nv, msg, args...)
}

func DefSwitch(sv *SwitchVector, perm Permission, msg string, args ...any) {
	current().Emitter().DefSwitch(sv, perm, msg, args...)
}

func DefText(tv *TextVector, msg string, args ...any) {
	current().Emitter().DefText(tv, msg, args...)
}

func DefBlob(bv *BlobVector, msg string, args ...any) {
	current().Emitter().DefBlob(bv, msg, args...)
}

func DefLight(lv *LightVector, msg string, args ...any) {
	current().Emitter().DefLight(lv, msg, args...)
}

func SetNumber(nv *NumberVector, msg string, args ...any) {
	current().Emitter().SetNumber(nv, msg, args...)
}

func SetSwitch(sv *SwitchVector, msg string, args ...any) {
	current().Emitter().SetSwitch(sv, msg, args...)
}

func SetText(tv *TextVector, msg string, args ...any) {
	current().Emitter().SetText(tv, msg, args...)
}

func SetBlob(bv *BlobVector, msg string, args ...any) error {
	return current().Emitter().SetBlob(bv, msg, args...)
}

func UpdateMinMax(nv *NumberVector) {
	current().Emitter().UpdateMinMax(nv)
}

func Message(device, msg string, args ...any) {
	current().Emitter().Message(device, msg, args...)
}

func DeleteProperty(device, name, msg string, args ...any) {
	current().Emitter().DeleteProperty(device, name, msg, args...)
}

func SnoopRequest(device, property string) {
	current().Emitter().SnoopRequest(device, property)
}

func SnoopBlobPolicy(device, property string, policy BlobPolicy) {
	current().Emitter().SnoopBlobPolicy(device, property, policy)
}

// ========= dispatch =========

// DispatchElement processes one already-parsed inbound element through
// the default Driver.
func DispatchElement(el *RawElement) error {
	return current().Dispatch(el)
}

// ========= config persistence =========

func LoadConfig(file, device, property string, silent bool) error {
	return current().Config().LoadConfig(file, device, property, silent)
}

func PurgeConfig(file, device string) error {
	return current().Config().PurgeConfig(file, device)
}

// SaveDefaultConfigFor copies src to dst (defaulting to the standard
// <device>_config.xml / <device>_config.xml.default paths) unless dst
// already exists; see SaveDefaultConfig for the copied/existed
// distinction.
func SaveDefaultConfigFor(src, dst, device string) (copied bool, err error) {
	return SaveDefaultConfig(src, dst, device)
}
