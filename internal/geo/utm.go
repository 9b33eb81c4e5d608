package geo

import (
	"log"
	"math"
)

// UTM projection constants
const (
	utmScale         = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
	utmMinLat        = -80.0
	utmMaxLat        = 84.0
)

// UTMZoneFor returns the natural UTM zone of a geodetic position,
// including the Norway and Svalbard exceptions.
func UTMZoneFor(lat, lon float64) int {
	if lon >= 180 {
		lon -= 360
	}
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone > 60 {
		zone = 60
	}

	// Southwest Norway
	if lat >= 56 && lat < 64 && lon >= 3 && lon < 12 {
		return 32
	}
	// Svalbard
	if lat >= 72 && lat < 84 {
		switch {
		case lon >= 0 && lon < 9:
			return 31
		case lon >= 9 && lon < 21:
			return 33
		case lon >= 21 && lon < 33:
			return 35
		case lon >= 33 && lon < 42:
			return 37
		}
	}
	return zone
}

// CentralMeridian returns the central meridian of a UTM zone in degrees
func CentralMeridian(zone int) float64 {
	return float64(zone-1)*6 - 180 + 3
}

// meridianArc returns the meridian distance from the equator to latitude phi (radians)
func meridianArc(phi float64) float64 {
	e2 := EccentricitySq
	e4 := e2 * e2
	e6 := e4 * e2
	return SemiMajorAxis * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))
}

// GeodeticToUTM projects a geodetic position into UTM
func (WGS84) GeodeticToUTM(pos LatPos, zone int) (UTMPos, bool) {
	if err := ValidateLatPos(pos); err != nil {
		log.Printf("[Geo] Warning: geodetic to UTM declined: %v", err)
		return UTMPos{}, false
	}
	if pos.Lat < utmMinLat || pos.Lat > utmMaxLat {
		log.Printf("[Geo] Warning: latitude %f outside UTM domain [%g, %g]", pos.Lat, utmMinLat, utmMaxLat)
		return UTMPos{}, false
	}
	if zone <= 0 {
		zone = UTMZoneFor(pos.Lat, pos.Lon)
	}
	if zone > 60 {
		return UTMPos{}, false
	}

	phi := pos.Lat * degToRad
	dLon := pos.Lon - CentralMeridian(zone)
	// Normalize to [-180, 180) so zones near the antimeridian project correctly
	dLon = math.Mod(dLon+540, 360) - 180
	lam := dLon * degToRad

	sinPhi, cosPhi, tanPhi := math.Sin(phi), math.Cos(phi), math.Tan(phi)
	n := SemiMajorAxis / math.Sqrt(1-EccentricitySq*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := SecondEccentricitySq * cosPhi * cosPhi
	a := cosPhi * lam
	m := meridianArc(phi)

	a2 := a * a
	a3 := a2 * a
	a4 := a3 * a
	a5 := a4 * a
	a6 := a5 * a

	easting := utmScale*n*(a+(1-t+c)*a3/6+
		(5-18*t+t*t+72*c-58*SecondEccentricitySq)*a5/120) + utmFalseEasting
	northing := utmScale * (m + n*tanPhi*(a2/2+
		(5-t+9*c+4*c*c)*a4/24+
		(61-58*t+t*t+600*c-330*SecondEccentricitySq)*a6/720))

	north := pos.Lat >= 0
	if !north {
		northing += utmFalseNorthing
	}

	return UTMPos{
		Zone:     zone,
		North:    north,
		Easting:  easting,
		Northing: northing,
		Height:   pos.Alt,
	}, true
}

// UTMToGeodetic converts a UTM position back to a geodetic position
func (WGS84) UTMToGeodetic(pos UTMPos) (LatPos, bool) {
	if err := ValidateUTMPos(pos); err != nil {
		log.Printf("[Geo] Warning: UTM to geodetic declined: %v", err)
		return LatPos{}, false
	}

	x := pos.Easting - utmFalseEasting
	y := pos.Northing
	if !pos.North {
		y -= utmFalseNorthing
	}

	e2 := EccentricitySq
	e4 := e2 * e2
	e6 := e4 * e2
	sqrt1e2 := math.Sqrt(1 - e2)
	e1 := (1 - sqrt1e2) / (1 + sqrt1e2)

	m := y / utmScale
	mu := m / (SemiMajorAxis * (1 - e2/4 - 3*e4/64 - 5*e6/256))

	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi1, cosPhi1, tanPhi1 := math.Sin(phi1), math.Cos(phi1), math.Tan(phi1)
	denom := 1 - e2*sinPhi1*sinPhi1
	n1 := SemiMajorAxis / math.Sqrt(denom)
	t1 := tanPhi1 * tanPhi1
	c1 := SecondEccentricitySq * cosPhi1 * cosPhi1
	r1 := SemiMajorAxis * (1 - e2) / math.Pow(denom, 1.5)
	d := x / (n1 * utmScale)

	d2 := d * d
	d3 := d2 * d
	d4 := d3 * d
	d5 := d4 * d
	d6 := d5 * d

	lat := phi1 - (n1*tanPhi1/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*SecondEccentricitySq)*d4/24+
		(61+90*t1+298*c1+45*t1*t1-252*SecondEccentricitySq-3*c1*c1)*d6/720)
	lon := (d - (1+2*t1+c1)*d3/6 +
		(5-2*c1+28*t1-3*c1*c1+8*SecondEccentricitySq+24*t1*t1)*d5/120) / cosPhi1

	latDeg := lat / degToRad
	lonDeg := CentralMeridian(pos.Zone) + lon/degToRad
	lonDeg = math.Mod(lonDeg+540, 360) - 180

	if math.IsNaN(latDeg) || math.IsNaN(lonDeg) || math.Abs(latDeg) > 90 {
		return LatPos{}, false
	}

	return LatPos{
		Lat: latDeg,
		Lon: lonDeg,
		Alt: pos.Height,
	}, true
}
