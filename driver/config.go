package driver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// cfgMu guards config path resolution and file creation the way the
// teacher's manager/config.go guarded its single on-disk config file with
// configLock (§4.G adapted from a JSON VPN-manager config to an XML
// per-device property snapshot).
var cfgMu sync.Mutex

const configDirPerm = 0755

// configDir returns $HOME/.indi, creating it with 0755 if missing.
func configDir() (string, error) {
	cfgMu.Lock()
	defer cfgMu.Unlock()

	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("HOME is not set")
	}
	dir := filepath.Join(home, ".indi")
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return "", err
	}
	return dir, nil
}

// defaultConfigPath resolves the config file for device, honoring
// $INDICONFIG as an override of the default $HOME/.indi/<device>_config.xml
// (§4.G, §6).
func defaultConfigPath(device string) (string, error) {
	if p := os.Getenv("INDICONFIG"); p != "" {
		return p, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, device+"_config.xml"), nil
}

// checkOwnership refuses to open a config file or its directory when it
// is owned by root while the driver runs as a non-root user, with the
// fixed remediation message from §4.G.
func checkOwnership(path string) error {
	if os.Geteuid() == 0 {
		return nil
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if st.Uid == 0 {
		return fmt.Errorf("config file %s is owned by root; run: chown -R $(whoami) %s", path, filepath.Dir(path))
	}
	return nil
}

// ConfigStore implements the config-persistence operations of §4.G,
// replaying the same XML grammar used on the wire through a Dispatcher.
type ConfigStore struct {
	dispatcher *Dispatcher
	emitter    *Emitter
	log        *Logger
}

// NewConfigStore builds a ConfigStore that replays loaded elements through
// dispatcher and reports progress through emitter/log.
func NewConfigStore(dispatcher *Dispatcher, emitter *Emitter, log *Logger) *ConfigStore {
	return &ConfigStore{dispatcher: dispatcher, emitter: emitter, log: log}
}

func (c *ConfigStore) resolvePath(file, device string) (string, error) {
	if file != "" {
		return file, nil
	}
	return defaultConfigPath(device)
}

func (c *ConfigStore) openAndParse(file, device string) ([]RawElement, error) {
	path, err := c.resolvePath(file, device)
	if err != nil {
		return nil, err
	}
	if err := checkOwnership(filepath.Dir(path)); err != nil {
		return nil, err
	}
	if err := checkOwnership(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src := NewElementSource(f)
	root, err := src.Next()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return root.Children, nil
}

// LoadConfig opens file (or the default path for device), and replays
// every child element whose device attribute matches. If property is
// empty every matching element is replayed; otherwise only the one whose
// name matches property is replayed, and replay stops there (§4.G).
func (c *ConfigStore) LoadConfig(file, device, property string, silent bool) error {
	children, err := c.openAndParse(file, device)
	if err != nil {
		return err
	}

	for i := range children {
		el := &children[i]
		if d, _ := el.Attr("device"); d != device {
			continue
		}
		if property != "" {
			if n, _ := el.Attr("name"); n != property {
				continue
			}
			if err := c.dispatcher.Dispatch(el); err != nil {
				return err
			}
			if !silent {
				c.emitter.Message(device, "Configuration loaded for %s", property)
			}
			return nil
		}
		if err := c.dispatcher.Dispatch(el); err != nil {
			return err
		}
	}
	if !silent && property == "" {
		c.emitter.Message(device, "Configuration loaded")
	}
	return nil
}

// SaveDefaultConfig copies src byte-for-byte to dst if dst does not yet
// exist, and does nothing otherwise. The return value distinguishes the
// two cases, resolving the Open Question in §9 explicitly rather than
// collapsing both into one signal (DESIGN.md).
func SaveDefaultConfig(src, dst, device string) (copied bool, err error) {
	if dst == "" {
		p, err := defaultConfigPath(device)
		if err != nil {
			return false, err
		}
		dst = p + ".default"
	}
	if src == "" {
		p, err := defaultConfigPath(device)
		if err != nil {
			return false, err
		}
		src = p
	}

	if _, err := os.Stat(dst); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return false, err
	}
	return true, nil
}

// PurgeConfig unlinks the config file for device.
func (c *ConfigStore) PurgeConfig(file, device string) error {
	path := file
	if path == "" {
		p, err := defaultConfigPath(device)
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func findVectorMember(children []RawElement, device, property string) *RawElement {
	for i := range children {
		el := &children[i]
		if d, _ := el.Attr("device"); d != device {
			continue
		}
		if n, _ := el.Attr("name"); n != property {
			continue
		}
		return el
	}
	return nil
}

func childByName(el *RawElement, member string) *RawElement {
	for i := range el.Children {
		if n, _ := el.Children[i].Attr("name"); n == member {
			return &el.Children[i]
		}
	}
	return nil
}

// GetConfigSwitch returns the state recorded for member of a saved switch
// vector, or ok=false if the file, property or member is not found.
func (c *ConfigStore) GetConfigSwitch(device, property, member string) (state SwitchState, ok bool, err error) {
	children, err := c.openAndParse("", device)
	if err != nil {
		return Off, false, err
	}
	vec := findVectorMember(children, device, property)
	if vec == nil {
		return Off, false, nil
	}
	child := childByName(vec, member)
	if child == nil {
		return Off, false, nil
	}
	s, perr := parseSwitchState(child.Body)
	if perr != nil {
		return Off, false, perr
	}
	return s, true, nil
}

// GetConfigOnSwitchIndex returns the index of the On element of property,
// or ok=false if not found.
func (c *ConfigStore) GetConfigOnSwitchIndex(device, property string) (index int, ok bool, err error) {
	children, err := c.openAndParse("", device)
	if err != nil {
		return 0, false, err
	}
	vec := findVectorMember(children, device, property)
	if vec == nil {
		return 0, false, nil
	}
	for i := range vec.Children {
		if vec.Children[i].Tag != "oneSwitch" {
			continue
		}
		if s, perr := parseSwitchState(vec.Children[i].Body); perr == nil && s == On {
			return i, true, nil
		}
	}
	return 0, false, nil
}

// GetConfigOnSwitchName returns the name of the On element of property.
func (c *ConfigStore) GetConfigOnSwitchName(device, property string) (name string, ok bool, err error) {
	children, err := c.openAndParse("", device)
	if err != nil {
		return "", false, err
	}
	vec := findVectorMember(children, device, property)
	if vec == nil {
		return "", false, nil
	}
	for i := range vec.Children {
		if vec.Children[i].Tag != "oneSwitch" {
			continue
		}
		if s, perr := parseSwitchState(vec.Children[i].Body); perr == nil && s == On {
			n, _ := vec.Children[i].Attr("name")
			return n, true, nil
		}
	}
	return "", false, nil
}

// GetConfigNumber returns the value recorded for member of a saved number
// vector.
func (c *ConfigStore) GetConfigNumber(device, property, member string) (value float64, ok bool, err error) {
	children, err := c.openAndParse("", device)
	if err != nil {
		return 0, false, err
	}
	vec := findVectorMember(children, device, property)
	if vec == nil {
		return 0, false, nil
	}
	child := childByName(vec, member)
	if child == nil {
		return 0, false, nil
	}
	v, perr := parseSexagesimal(child.Body)
	if perr != nil {
		return 0, false, perr
	}
	return v, true, nil
}

// GetConfigText returns the value recorded for member of a saved text
// vector.
func (c *ConfigStore) GetConfigText(device, property, member string) (text string, ok bool, err error) {
	children, err := c.openAndParse("", device)
	if err != nil {
		return "", false, err
	}
	vec := findVectorMember(children, device, property)
	if vec == nil {
		return "", false, nil
	}
	child := childByName(vec, member)
	if child == nil {
		return "", false, nil
	}
	return child.Body, true, nil
}

// SaveConfigTag writes the canonical <INDIDriver> open tag (opening=true)
// or its closing tag to fp, additionally emitting an informational
// message through the emitter unless silent (§4.G).
func (c *ConfigStore) SaveConfigTag(fp io.Writer, opening bool, device string, silent bool) error {
	var tag string
	if opening {
		tag = "<INDIDriver>\n"
	} else {
		tag = "</INDIDriver>\n"
	}
	if _, err := io.WriteString(fp, tag); err != nil {
		return err
	}
	if !silent {
		if opening {
			c.emitter.Message(device, "Saving configuration")
		} else {
			c.emitter.Message(device, "Configuration saved")
		}
	}
	return nil
}
