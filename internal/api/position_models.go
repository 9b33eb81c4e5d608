package api

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mapcore/server/internal/geo"
	"github.com/mapcore/server/internal/mapctl"
	"github.com/mapcore/server/internal/scene"
)

// MapPosition is the wire form of a map position. Region names a region
// of the active map's ROI tree; empty means global coordinates.
// Orientation is column-major East, North, Up.
type MapPosition struct {
	Region      string     `json:"region,omitempty"`
	Position    [3]float64 `json:"position"`
	Clamped     bool       `json:"clamped"`
	Normal      [3]float32 `json:"normal"`
	Orientation [9]float32 `json:"orientation"`
}

// GeodeticPosition is a WGS84 position in degrees and meters
type GeodeticPosition struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
	Alt float64 `json:"alt"`
}

// ClampSettings selects the clamp mode and options of a request.
// A missing options list uses the default options.
type ClampSettings struct {
	Clamp   string   `json:"clamp,omitempty" validate:"omitempty,oneof=none ground ground_normal_to_surface building"`
	Options []string `json:"options,omitempty" validate:"omitempty,dive,oneof=wait_for_data isect_lod_quality frustum_cull update_data"`
}

// LocalRequest converts a geodetic position into map coordinates
type LocalRequest struct {
	Position GeodeticPosition `json:"position"`
	ClampSettings
}

// LocalResponse is a converted map position
type LocalResponse struct {
	Position MapPosition `json:"position"`
}

// GeodeticRequest converts a map position into geodetic coordinates
type GeodeticRequest struct {
	Position MapPosition `json:"position"`
}

// GeodeticResponse is a converted geodetic position
type GeodeticResponse struct {
	Position GeodeticPosition `json:"position"`
}

// ClampRequest clamps a map position to the ground
type ClampRequest struct {
	Position MapPosition `json:"position"`
	ClampSettings
}

// PickRequest picks the ground under a viewport pixel
type PickRequest struct {
	X       int      `json:"x" validate:"gte=0"`
	Y       int      `json:"y" validate:"gte=0"`
	Width   int      `json:"width" validate:"gt=0"`
	Height  int      `json:"height" validate:"gt=0"`
	Options []string `json:"options,omitempty" validate:"omitempty,dive,oneof=wait_for_data isect_lod_quality frustum_cull update_data"`
}

// AltitudeResponse is the ground altitude at a geodetic position
type AltitudeResponse struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude float64 `json:"altitude"`
}

// CameraRequest sets the active camera. Zero optional fields take the
// defaults of scene.NewCamera.
type CameraRequest struct {
	Position [3]float64 `json:"position"`
	Target   [3]float64 `json:"target"`
	Up       [3]float64 `json:"up"`
	FovY     float64    `json:"fov_y" validate:"gte=0,lt=180"`
	Near     float64    `json:"near" validate:"gte=0"`
	Far      float64    `json:"far" validate:"gte=0"`
	Aspect   float64    `json:"aspect" validate:"gte=0"`
}

// camera builds the scene camera described by the request
func (c CameraRequest) camera() *scene.Camera {
	cam := scene.NewCamera(mgl64.Vec3(c.Position), mgl64.Vec3(c.Target))
	if c.Up != ([3]float64{}) {
		cam.Up = mgl64.Vec3(c.Up)
	}
	if c.FovY > 0 {
		cam.FovY = c.FovY
	}
	if c.Near > 0 {
		cam.Near = c.Near
	}
	if c.Far > 0 {
		cam.Far = c.Far
	}
	if c.Aspect > 0 {
		cam.Aspect = c.Aspect
	}
	return cam
}

func cameraResponse(cam *scene.Camera) CameraRequest {
	return CameraRequest{
		Position: cam.Position,
		Target:   cam.Target,
		Up:       cam.Up,
		FovY:     cam.FovY,
		Near:     cam.Near,
		Far:      cam.Far,
		Aspect:   cam.Aspect,
	}
}

func (g GeodeticPosition) latPos() geo.LatPos {
	return geo.LatPos{Lat: g.Lat, Lon: g.Lon, Alt: g.Alt}
}

func geodeticPosition(p geo.LatPos) GeodeticPosition {
	return GeodeticPosition{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt}
}

func mapPosition(p mapctl.MapPos) MapPosition {
	out := MapPosition{
		Position:    p.Position,
		Clamped:     p.Clamped,
		Normal:      p.Normal,
		Orientation: p.Orientation,
	}
	if region := p.Context(); region != nil {
		out.Region = region.Name()
	}
	return out
}

// regionLookup resolves region names of the active map
type regionLookup interface {
	RegionByName(name string) *scene.Region
}

// toMapPos resolves the wire form against the active map. It fails when
// a named region does not exist.
func (m MapPosition) toMapPos(regions regionLookup) (mapctl.MapPos, bool) {
	var region *scene.Region
	if m.Region != "" {
		region = regions.RegionByName(m.Region)
		if region == nil {
			return mapctl.MapPos{}, false
		}
	}
	pos := mapctl.NewMapPos(region, mgl64.Vec3(m.Position))
	pos.Clamped = m.Clamped
	pos.Normal = mgl32.Vec3(m.Normal)
	pos.Orientation = mgl32.Mat3(m.Orientation)
	return pos, true
}

// parse reads the clamp mode and options
func (c ClampSettings) parse() (mapctl.GroundClamp, mapctl.ClampOptions, error) {
	clamp, err := mapctl.ParseGroundClamp(c.Clamp)
	if err != nil {
		return mapctl.ClampNone, 0, err
	}
	opts, err := mapctl.ParseClampOptions(c.Options)
	if err != nil {
		return mapctl.ClampNone, 0, err
	}
	return clamp, opts, nil
}
