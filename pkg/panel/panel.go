// Package panel defines the fixed geometry constants for supported DMD panels.
//
// The original control code varied width/height/pitch/dual-controller by
// subclassing a base driver per panel model. This package replaces that with
// a plain value type constructed once and passed to the rest of the driver.
package panel

// Profile describes the fixed geometry of one DMD panel model.
type Profile struct {
	Name           string
	Width          int
	Height         int
	PitchMicrons   float64
	DualController bool
}

// HalfWidth returns the width of one controller's half of the image for
// dual-controller panels, or the full width otherwise.
func (p Profile) HalfWidth() int {
	if p.DualController {
		return p.Width / 2
	}
	return p.Width
}

// DLP6500Profile returns the geometry for the DLP6500 evaluation module:
// a single DLPC900 controller driving the full 1920x1080 array.
func DLP6500Profile() Profile {
	return Profile{
		Name:           "DLP6500",
		Width:          1920,
		Height:         1080,
		PitchMicrons:   7.56,
		DualController: false,
	}
}

// DLP9000Profile returns the geometry for the DLP9000 evaluation module:
// two DLPC900 controllers, each driving one half (1024x1200) of the full
// 2048x1200 array.
func DLP9000Profile() Profile {
	return Profile{
		Name:           "DLP9000",
		Width:          2048,
		Height:         1200,
		PitchMicrons:   7.56,
		DualController: true,
	}
}
