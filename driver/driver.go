package driver

import (
	"errors"
	"io"
	"os"
	"sync/atomic"
)

// Driver owns the full set of collaborators described in §4: the
// registry, writer, emitter, BLOB flow controller, dispatcher and config
// store, wired together the way device.Device owns its peers, net and
// queue sub-structures in the teacher repo.
type Driver struct {
	name    string
	verbose atomic.Bool

	registry   *Registry
	writer     *Writer
	emitter    *Emitter
	blob       *BlobController
	dispatcher *Dispatcher
	config     *ConfigStore
	log        *Logger

	source ElementSource
}

// NewDriver builds a Driver reading commands from in and writing protocol
// elements to out. callbacks receives every dispatched driver action.
func NewDriver(name string, in io.Reader, out io.Writer, callbacks Callbacks) *Driver {
	d := &Driver{name: name}

	log := NewLogger(name, false)
	d.log = log

	d.writer = NewWriter(out, func(err error) {
		log.Errorf("fatal write error: %v", err)
		os.Exit(1)
	})
	d.registry = NewRegistry()
	d.blob = NewBlobController()
	d.emitter = NewEmitter(d.writer, d.registry, d.blob, log)
	d.dispatcher = NewDispatcher(d.registry, d.emitter, d.blob, callbacks, log)
	d.config = NewConfigStore(d.dispatcher, d.emitter, log)
	d.source = NewElementSource(in)

	return d
}

// SetVerbose toggles whether every inbound element is echoed to the
// diagnostic stream before dispatch (§4.H).
func (d *Driver) SetVerbose(v bool) {
	d.verbose.Store(v)
	level := "info"
	if v {
		level = "trace"
	}
	d.log = NewLogger(d.name, v)
	d.log.Infof("verbosity set to %s", level)
}

// Emitter returns the driver's outbound operations (§4.C).
func (d *Driver) Emitter() *Emitter { return d.emitter }

// Registry returns the driver's property sanity cache (§4.B).
func (d *Driver) Registry() *Registry { return d.registry }

// Config returns the driver's config-persistence operations (§4.G).
func (d *Driver) Config() *ConfigStore { return d.config }

// Blob returns the driver's BLOB flow controller (§4.D), in case a driver
// author needs direct access (e.g. to bound WaitPingReply with a
// deadline, see DESIGN.md Open Question #2).
func (d *Driver) Blob() *BlobController { return d.blob }

// Dispatch processes one already-parsed inbound element, echoing it to
// the diagnostic stream first when verbose mode is on (§4.H).
func (d *Driver) Dispatch(el *RawElement) error {
	if d.verbose.Load() {
		device, _ := el.Attr("device")
		name, _ := el.Attr("name")
		d.log.Verbosef("recv %s device=%q name=%q", el.Tag, device, name)
	}
	return d.dispatcher.Dispatch(el)
}

// Run reads inbound elements until the stream closes (io.EOF) or a
// genuinely unexpected read error occurs, dispatching each one in turn on
// the calling goroutine.
func (d *Driver) Run() error {
	for {
		el, err := d.source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := d.Dispatch(el); err != nil {
			d.log.Verbosef("dispatch: %v", err)
		}
	}
}
