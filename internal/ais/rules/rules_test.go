package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/vessel.report/internal/ais"
	"github.com/banshee-data/vessel.report/internal/config"
)

var testT0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

// point builds a test report at t0+offsetSec.
func point(offsetSec float64, lat, lon float64) ais.Point {
	return ais.Point{
		MMSI:      "367001234",
		Timestamp: testT0.Add(time.Duration(offsetSec * float64(time.Second))),
		Lat:       lat,
		Lon:       lon,
	}
}

func defaultCfg() *config.DetectionConfig {
	return config.EmptyDetectionConfig()
}

func TestRegistryOrder(t *testing.T) {
	t.Parallel()

	want := []ais.RuleType{
		ais.RuleTeleport,
		ais.RuleTeleportT2,
		ais.RuleTurnRate,
		ais.RuleTurnRateT2,
		ais.RulePositionInvalid,
		ais.RuleAcceleration,
		ais.RuleHeadingCOG,
	}
	reg := Registry()
	if len(reg) != len(want) {
		t.Fatalf("registry has %d rules, want %d", len(reg), len(want))
	}
	for i, r := range reg {
		if r.Type != want[i] {
			t.Errorf("registry[%d] = %s, want %s", i, r.Type, want[i])
		}
		if r.Eval == nil {
			t.Errorf("registry[%d] (%s) has nil Eval", i, r.Type)
		}
	}
}

func TestNoRuleFiresOnNonPositiveDt(t *testing.T) {
	t.Parallel()

	// Same instant and reversed order both give dt <= 0. p2 is hostile on
	// every axis a rule inspects (out-of-bounds position, wild speed,
	// reversed course) to prove the short-circuit, not rule thresholds.
	p1 := point(0, 40.0, -74.0)
	p1.SOG = fp(12)
	p1.COG = fp(90)
	p2 := point(0, 95.0, -200.0)
	p2.SOG = fp(80)
	p2.COG = fp(270)

	for _, r := range Registry() {
		assert.Nil(t, r.Eval(p1, p2, defaultCfg()), "rule %s fired on dt = 0", r.Type)
	}

	p3 := p2
	p3.Timestamp = testT0.Add(-60 * time.Second)
	for _, r := range Registry() {
		assert.Nil(t, r.Eval(p1, p3, defaultCfg()), "rule %s fired on dt < 0", r.Type)
	}
}

func TestSelectAngle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		h1, h2    *float64
		c1, c2    *float64
		wantDelta float64
		wantType  string
		wantOK    bool
	}{
		{
			name: "nothing available",
		},
		{
			name:      "heading only",
			h1:        fp(10),
			h2:        fp(40),
			wantDelta: 30,
			wantType:  "heading",
			wantOK:    true,
		},
		{
			name:      "cog only",
			c1:        fp(350),
			c2:        fp(20),
			wantDelta: 30,
			wantType:  "COG",
			wantOK:    true,
		},
		{
			name:      "511 sentinel falls back to cog",
			h1:        fp(511),
			h2:        fp(40),
			c1:        fp(0),
			c2:        fp(15),
			wantDelta: 15,
			wantType:  "COG",
			wantOK:    true,
		},
		{
			name:      "both moving prefers heading",
			h1:        fp(0),
			h2:        fp(25),
			c1:        fp(0),
			c2:        fp(90),
			wantDelta: 25,
			wantType:  "heading",
			wantOK:    true,
		},
		{
			name:      "heading stuck uses cog",
			h1:        fp(100),
			h2:        fp(100),
			c1:        fp(0),
			c2:        fp(50),
			wantDelta: 50,
			wantType:  "COG",
			wantOK:    true,
		},
		{
			name:      "both stuck prefers heading",
			h1:        fp(100),
			h2:        fp(100),
			c1:        fp(30),
			c2:        fp(30),
			wantDelta: 0,
			wantType:  "heading",
			wantOK:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p1 := point(0, 40, -74)
			p1.Heading, p1.COG = tt.h1, tt.c1
			p2 := point(10, 40.001, -74)
			p2.Heading, p2.COG = tt.h2, tt.c2

			delta, angleType, ok := selectAngle(p1, p2)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.wantDelta, delta, 1e-9)
				assert.Equal(t, tt.wantType, angleType)
			}
		})
	}
}
