package models

import "time"

type ZoneType string

const (
	ZoneDemand ZoneType = "demand"
	ZoneSupply ZoneType = "supply"
)

// Zone is a supply or demand price band derived from a confirmed pivot.
type Zone struct {
	Type       ZoneType  `json:"type"`
	Top        float64   `json:"top"`
	Bottom     float64   `json:"bottom"`
	PivotIndex int       `json:"pivotIndex"`
	StartTime  time.Time `json:"startTime"`
	Fresh      bool      `json:"fresh"`
	Mitigated  bool      `json:"mitigated"`
	LastTouch  time.Time `json:"lastTouch,omitzero"`
}

// ZoneKey identifies a zone within one candle series.
type ZoneKey struct {
	Type       ZoneType
	PivotIndex int
}

func (z Zone) Key() ZoneKey { return ZoneKey{Type: z.Type, PivotIndex: z.PivotIndex} }

// Contains reports whether [low, high] intersects the zone band.
func (z Zone) Contains(low, high float64) bool {
	return low <= z.Top && high >= z.Bottom
}
