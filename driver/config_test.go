package driver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestConfigStore(t *testing.T) (*ConfigStore, *Registry, *recordingCallbacks) {
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
	return NewConfigStore(d, em, log), reg, cb
}

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	old, hadOld := os.LookupEnv("HOME")
	os.Setenv("HOME", home)
	os.Unsetenv("INDICONFIG")
	t.Cleanup(func() {
		if hadOld {
			os.Setenv("HOME", old)
		} else {
			os.Unsetenv("HOME")
		}
	})
	return home
}

func TestLoadConfigReplaysMatchingDeviceOnly(t *testing.T) {
	home := withTempHome(t)
	cs, reg, cb := newTestConfigStore(t)
	reg.RegisterOnce("Mount", "EXP", ReadWrite, KindNumber,
		&NumberVector{Elements: []NumberMember{{Name: "EXP", Min: 0, Max: 10}}})

	path := filepath.Join(home, ".indi", "Mount_config.xml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	contents := `<INDIDriver>` +
		`<newNumberVector device="Mount" name="EXP"><oneNumber name="EXP">3</oneNumber></newNumberVector>` +
		`<newNumberVector device="OtherScope" name="EXP"><oneNumber name="EXP">9</oneNumber></newNumberVector>` +
		`</INDIDriver>`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := cs.LoadConfig("", "Mount", "", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.newNumberCalls != 1 {
		t.Fatalf("expected exactly one callback for the matching device, got %d", cb.newNumberCalls)
	}
	if len(cb.lastUpdates) != 1 || cb.lastUpdates[0].Value != 3 {
		t.Fatalf("expected value 3 replayed, got %+v", cb.lastUpdates)
	}
}

func TestLoadConfigScopedToSingleProperty(t *testing.T) {
	home := withTempHome(t)
	cs, reg, cb := newTestConfigStore(t)
	reg.RegisterOnce("Mount", "A", ReadWrite, KindNumber, &NumberVector{Elements: []NumberMember{{Name: "A", Min: 0, Max: 10}}})
	reg.RegisterOnce("Mount", "B", ReadWrite, KindNumber, &NumberVector{Elements: []NumberMember{{Name: "B", Min: 0, Max: 10}}})

	path := filepath.Join(home, ".indi", "Mount_config.xml")
	os.MkdirAll(filepath.Dir(path), 0755)
	contents := `<INDIDriver>` +
		`<newNumberVector device="Mount" name="A"><oneNumber name="A">1</oneNumber></newNumberVector>` +
		`<newNumberVector device="Mount" name="B"><oneNumber name="B">2</oneNumber></newNumberVector>` +
		`</INDIDriver>`
	os.WriteFile(path, []byte(contents), 0644)

	if err := cs.LoadConfig("", "Mount", "B", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.newNumberCalls != 1 {
		t.Fatalf("expected exactly one callback when scoped to property B, got %d", cb.newNumberCalls)
	}
	if cb.lastUpdates[0].Value != 2 {
		t.Fatalf("expected value 2 for scoped property B, got %+v", cb.lastUpdates)
	}
}

func TestSaveDefaultConfigDistinguishesCopiedFromExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.xml")
	dst := filepath.Join(dir, "dst.xml")
	if err := os.WriteFile(src, []byte("<INDIDriver></INDIDriver>"), 0644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	copied, err := SaveDefaultConfig(src, dst, "Mount")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !copied {
		t.Fatalf("expected copied=true on first save")
	}

	copied, err = SaveDefaultConfig(src, dst, "Mount")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if copied {
		t.Fatalf("expected copied=false when destination already exists")
	}
}

func TestPurgeConfigRemovesFile(t *testing.T) {
	cs, _, _ := newTestConfigStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "Mount_config.xml")
	os.WriteFile(path, []byte("<INDIDriver></INDIDriver>"), 0644)

	if err := cs.PurgeConfig(path, "Mount"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be removed")
	}
}

func TestPurgeConfigMissingFileFails(t *testing.T) {
	cs, _, _ := newTestConfigStore(t)
	err := cs.PurgeConfig(filepath.Join(t.TempDir(), "nope.xml"), "Mount")
	if err == nil {
		t.Fatalf("expected an error removing a missing file")
	}
}

func TestGetConfigNumberAndSwitch(t *testing.T) {
	home := withTempHome(t)
	cs, _, _ := newTestConfigStore(t)

	path := filepath.Join(home, ".indi", "Mount_config.xml")
	os.MkdirAll(filepath.Dir(path), 0755)
	contents := `<INDIDriver>` +
		`<newNumberVector device="Mount" name="EXP"><oneNumber name="EXP">4.5</oneNumber></newNumberVector>` +
		`<newSwitchVector device="Mount" name="CONNECTION">` +
		`<oneSwitch name="CONNECT">Off</oneSwitch>` +
		`<oneSwitch name="DISCONNECT">On</oneSwitch>` +
		`</newSwitchVector>` +
		`</INDIDriver>`
	os.WriteFile(path, []byte(contents), 0644)

	value, ok, err := cs.GetConfigNumber("Mount", "EXP", "EXP")
	if err != nil || !ok || value != 4.5 {
		t.Fatalf("expected EXP=4.5, got value=%v ok=%v err=%v", value, ok, err)
	}

	name, ok, err := cs.GetConfigOnSwitchName("Mount", "CONNECTION")
	if err != nil || !ok || name != "DISCONNECT" {
		t.Fatalf("expected on-switch DISCONNECT, got name=%q ok=%v err=%v", name, ok, err)
	}

	idx, ok, err := cs.GetConfigOnSwitchIndex("Mount", "CONNECTION")
	if err != nil || !ok || idx != 1 {
		t.Fatalf("expected on-switch index 1, got idx=%d ok=%v err=%v", idx, ok, err)
	}
}

func TestSaveConfigTagWritesOpeningWrapper(t *testing.T) {
	cs, _, _ := newTestConfigStore(t)
	var buf bytes.Buffer
	if err := cs.SaveConfigTag(&buf, true, "Mount", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "<INDIDriver>") {
		t.Fatalf("expected opening tag, got %q", buf.String())
	}
}
