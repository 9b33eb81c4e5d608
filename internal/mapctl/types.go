// Package mapctl resolves map positions: conversions between geodetic,
// global Cartesian and region-relative local coordinates, and clamping of
// positions to the ground surface by ray intersection.
package mapctl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mapcore/server/internal/isect"
)

// ProjectionKind determines how geodetic coordinates map to the global frame
type ProjectionKind int

const (
	ProjectionUnknown ProjectionKind = iota
	ProjectionPlain
	ProjectionUTM
	ProjectionGeocentric
)

func (p ProjectionKind) String() string {
	switch p {
	case ProjectionPlain:
		return "plain"
	case ProjectionUTM:
		return "utm"
	case ProjectionGeocentric:
		return "geocentric"
	default:
		return "unknown"
	}
}

// GroundClamp selects a clamping policy. The modes are mutually exclusive.
type GroundClamp int

const (
	// ClampNone leaves the position untouched
	ClampNone GroundClamp = iota
	// ClampGround snaps to the surface and reports the local up as normal
	ClampGround
	// ClampGroundNormalToSurface snaps to the surface and reports the surface normal
	ClampGroundNormalToSurface
	// ClampBuilding clamps like ClampGroundNormalToSurface
	ClampBuilding
)

var groundClampNames = map[GroundClamp]string{
	ClampNone:                  "none",
	ClampGround:                "ground",
	ClampGroundNormalToSurface: "ground_normal_to_surface",
	ClampBuilding:              "building",
}

func (c GroundClamp) String() string {
	if name, ok := groundClampNames[c]; ok {
		return name
	}
	return fmt.Sprintf("GroundClamp(%d)", int(c))
}

// ParseGroundClamp parses a clamp mode name as produced by String
func ParseGroundClamp(s string) (GroundClamp, error) {
	if s == "" {
		return ClampNone, nil
	}
	for mode, name := range groundClampNames {
		if strings.EqualFold(s, name) {
			return mode, nil
		}
	}
	return ClampNone, fmt.Errorf("unknown ground clamp mode %q", s)
}

// ClampOptions is a bit set of clamping options
type ClampOptions uint32

const (
	// OptWaitForData blocks until dynamic data on the ray path is loaded
	OptWaitForData ClampOptions = 1 << iota
	// OptIsectLodQuality casts from the target itself so the highest level of detail is used
	OptIsectLodQuality
	// OptFrustumCull restricts intersection to the active camera's view frustum
	OptFrustumCull
	// OptUpdateData requests dynamic data refresh during the query
	OptUpdateData
)

// DefaultClampOptions is used when callers have no preference
const DefaultClampOptions = OptFrustumCull

var clampOptionNames = []struct {
	opt  ClampOptions
	name string
}{
	{OptWaitForData, "wait_for_data"},
	{OptIsectLodQuality, "isect_lod_quality"},
	{OptFrustumCull, "frustum_cull"},
	{OptUpdateData, "update_data"},
}

// Has reports whether all bits of opt are set
func (o ClampOptions) Has(opt ClampOptions) bool {
	return o&opt == opt
}

// Names lists the set options
func (o ClampOptions) Names() []string {
	names := []string{}
	for _, entry := range clampOptionNames {
		if o.Has(entry.opt) {
			names = append(names, entry.name)
		}
	}
	return names
}

func (o ClampOptions) String() string {
	if o == 0 {
		return "none"
	}
	return strings.Join(o.Names(), "|")
}

// ParseClampOptions combines option names. A nil slice yields DefaultClampOptions.
func ParseClampOptions(names []string) (ClampOptions, error) {
	if names == nil {
		return DefaultClampOptions, nil
	}
	var opts ClampOptions
	for _, name := range names {
		found := false
		for _, entry := range clampOptionNames {
			if strings.EqualFold(name, entry.name) {
				opts |= entry.opt
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown clamp option %q", name)
		}
	}
	return opts, nil
}

// isectFlags translates clamp options into intersection query flags
func (o ClampOptions) isectFlags() isect.Flags {
	flags := isect.NearestPoint | isect.Normal
	if o.Has(OptWaitForData) {
		flags |= isect.WaitForData
	}
	if o.Has(OptUpdateData) {
		flags |= isect.UpdateData
	}
	return flags
}

// Errors describing why a resolver operation returned false. The resolver
// itself only reports booleans; these are used by callers to build messages.
var (
	ErrNoActiveMap = errors.New("no active map")
	ErrConversion  = errors.New("coordinate conversion failed")
	ErrNoGround    = errors.New("no ground found")
)
