package driver

import "fmt"

// NumberUpdate is one (name, value) pair from a peer-originated
// newNumberVector.
type NumberUpdate struct {
	Name  string
	Value float64
}

// SwitchUpdate is one (name, state) pair from a peer-originated
// newSwitchVector.
type SwitchUpdate struct {
	Name  string
	State SwitchState
}

// TextUpdate is one (name, text) pair from a peer-originated
// newTextVector.
type TextUpdate struct {
	Name string
	Text string
}

// BlobUpdate is one decoded element from a peer-originated newBLOBVector.
type BlobUpdate struct {
	Name    string
	Size    int64
	BlobLen int64
	Data    []byte
	Format  string
}

// ApplyNumbers validates every (name, value) pair against nv's members —
// each name must resolve, each value must lie in [min, max] — before
// mutating anything. On any failure nv.State becomes Alert and no member
// is modified (§4.E, §8 invariant 4).
func ApplyNumbers(nv *NumberVector, updates []NumberUpdate) error {
	indices := make([]int, len(updates))
	for i, u := range updates {
		idx := nv.findIndex(u.Name)
		if idx < 0 {
			nv.State = Alert
			return fmt.Errorf("No member named %s found in %s", u.Name, nv.Name)
		}
		m := &nv.Elements[idx]
		if u.Value < m.Min || u.Value > m.Max {
			nv.State = Alert
			return fmt.Errorf("Error: invalid value for %s. Valid range is from %s to %s",
				u.Name, formatFloat(m.Min), formatFloat(m.Max))
		}
		indices[i] = idx
	}

	for i, u := range updates {
		nv.Elements[indices[i]].Value = u.Value
	}
	nv.State = Ok
	return nil
}

// ApplySwitches validates all names resolve, then applies the batch. For
// rule == OneOfMany the previous On element is snapshotted; if the result
// does not leave exactly one element On, the previous values are restored
// and an error describing the violation is returned (§3, §8 invariant 3).
func ApplySwitches(sv *SwitchVector, updates []SwitchUpdate) error {
	indices := make([]int, len(updates))
	for i, u := range updates {
		idx := sv.findIndex(u.Name)
		if idx < 0 {
			sv.State = Idle
			return fmt.Errorf("No member named %s found in %s", u.Name, sv.Name)
		}
		indices[i] = idx
	}

	if sv.Rule != OneOfMany {
		for i, u := range updates {
			sv.Elements[indices[i]].State = u.State
		}
		sv.State = Ok
		return nil
	}

	previous := make([]SwitchState, len(sv.Elements))
	for i := range sv.Elements {
		previous[i] = sv.Elements[i].State
		sv.Elements[i].State = Off
	}
	for i, u := range updates {
		sv.Elements[indices[i]].State = u.State
	}

	onCount := 0
	for i := range sv.Elements {
		if sv.Elements[i].State == On {
			onCount++
		}
	}

	if onCount == 1 {
		sv.State = Ok
		return nil
	}

	for i := range sv.Elements {
		sv.Elements[i].State = previous[i]
	}
	sv.State = Idle
	if onCount == 0 {
		return fmt.Errorf("No switch is on")
	}
	return fmt.Errorf("Too many switches are on")
}

// ApplyTexts validates all names resolve, then copies every value in.
// save_text in the source frees the old value and duplicates the new one;
// Go's garbage collector makes that step implicit here.
func ApplyTexts(tv *TextVector, updates []TextUpdate) error {
	indices := make([]int, len(updates))
	for i, u := range updates {
		idx := tv.findIndex(u.Name)
		if idx < 0 {
			return fmt.Errorf("No member named %s found in %s", u.Name, tv.Name)
		}
		indices[i] = idx
	}
	for i, u := range updates {
		tv.Elements[indices[i]].Value = u.Text
	}
	return nil
}

// ApplyBlobs validates all names resolve, then stores every decoded
// buffer. save_blob in the source frees the old buffer and takes
// ownership of the new bytes; here that is a plain slice assignment.
func ApplyBlobs(bv *BlobVector, updates []BlobUpdate) error {
	indices := make([]int, len(updates))
	for i, u := range updates {
		idx := bv.findIndex(u.Name)
		if idx < 0 {
			return fmt.Errorf("No member named %s found in %s", u.Name, bv.Name)
		}
		indices[i] = idx
	}
	for i, u := range updates {
		m := &bv.Elements[indices[i]]
		m.Size = u.Size
		m.BlobLen = u.BlobLen
		m.Data = u.Data
		m.Format = u.Format
	}
	return nil
}
