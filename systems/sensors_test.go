package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/smartnav/components"
	"github.com/pthm-cable/smartnav/maps"
)

func TestBuildAngleTableDiamond(t *testing.T) {
	const n = 8
	table := BuildAngleTable(n, 180, 180)

	if len(table) != n*n {
		t.Fatalf("table length = %d, want %d", len(table), n*n)
	}

	counts := make([]int, DiamondRows(n))
	for i, a := range table {
		if a.H <= -90 || a.H >= 90 {
			t.Errorf("ray %d: horizontal angle %f outside (-90, 90)", i, a.H)
		}
		if a.V <= -90 || a.V >= 90 {
			t.Errorf("ray %d: vertical angle %f outside (-90, 90)", i, a.V)
		}
		counts[i%n+i/n]++
	}

	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 7, 6, 5, 4, 3, 2, 1}
	sum := 0
	for r, c := range counts {
		if c != want[r] {
			t.Errorf("row %d has %d rays, want %d", r, c, want[r])
		}
		if got := RowRayCount(n, r); got != want[r] {
			t.Errorf("RowRayCount(%d, %d) = %d, want %d", n, r, got, want[r])
		}
		sum += c
	}
	if sum != 64 {
		t.Errorf("row counts sum to %d, want 64", sum)
	}
}

func TestBuildAngleTableLayout(t *testing.T) {
	table := BuildAngleTable(2, 90, 60)
	// Rows: {0}, {1, 2}, {3}. Three rows split 60 degrees into quarters.
	want := AngleTable{
		{H: 0, V: -15},
		{H: -15, V: 0},
		{H: 15, V: 0},
		{H: 0, V: 15},
	}
	if len(table) != len(want) {
		t.Fatalf("table length = %d, want %d", len(table), len(want))
	}
	for i := range want {
		if math.Abs(table[i].H-want[i].H) > 1e-9 || math.Abs(table[i].V-want[i].V) > 1e-9 {
			t.Errorf("ray %d = %+v, want %+v", i, table[i], want[i])
		}
	}
}

func TestBuildAngleTableDeterministic(t *testing.T) {
	a := BuildAngleTable(6, 120, 90)
	b := BuildAngleTable(6, 120, 90)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ray %d differs between builds: %+v vs %+v", i, a[i], b[i])
		}
	}
	if BuildAngleTable(0, 180, 180) != nil {
		t.Error("grid size 0 should give an empty table")
	}
}

func TestAnglePairDirection(t *testing.T) {
	var tr components.Transform
	b := tr.Basis()

	tests := []struct {
		name string
		a    AnglePair
		want r3.Vec
	}{
		{"forward", AnglePair{}, r3.Vec{Z: 1}},
		{"right", AnglePair{H: 90}, r3.Vec{X: 1}},
		{"up", AnglePair{V: 90}, r3.Vec{Y: 1}},
		{"down", AnglePair{V: -90}, r3.Vec{Y: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.a.Direction(b)
			if r3.Norm(r3.Sub(got, tt.want)) > 1e-9 {
				t.Errorf("Direction = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAngleTableFirstRowLooksDown(t *testing.T) {
	var tr components.Transform
	b := tr.Basis()
	table := BuildAngleTable(4, 120, 90)

	first, last := table[0].Direction(b), table[len(table)-1].Direction(b)
	if first.Y >= 0 {
		t.Errorf("first ray direction %v, want downward", first)
	}
	if last.Y <= 0 {
		t.Errorf("last ray direction %v, want upward", last)
	}
	for i := 1; i < len(table); i++ {
		row, prev := i%4+i/4, (i-1)%4+(i-1)/4
		if row > prev && table[i].V <= table[i-1].V {
			t.Errorf("ray %d on row %d has V %f, not above row %d", i, row, table[i].V, prev)
		}
	}
}

// fixedRaycaster returns the same result for every ray.
type fixedRaycaster struct {
	hit   Hit
	ok    bool
	calls int
}

func (f *fixedRaycaster) Raycast(origin, dir r3.Vec, maxDist float64, mask uint32) (Hit, bool) {
	f.calls++
	return f.hit, f.ok
}

func TestCastAllNoHits(t *testing.T) {
	table := BuildAngleTable(8, 180, 180)
	rc := &fixedRaycaster{}

	buf := make([]float32, 64*3)
	for i := range buf {
		buf[i] = 0.5 // stale values from a previous cast
	}
	var tr components.Transform
	buf = CastAll(rc, r3.Vec{}, tr.Basis(), table, 17, AllLayers, 3, buf)

	if rc.calls != 64 {
		t.Errorf("cast %d rays, want 64", rc.calls)
	}
	if len(buf) != 64*3 {
		t.Fatalf("buffer length = %d, want %d", len(buf), 64*3)
	}
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("buf[%d] = %f, want 0", i, v)
		}
	}
}

func TestCastAllChannels(t *testing.T) {
	table := BuildAngleTable(2, 180, 180)
	var tr components.Transform
	b := tr.Basis()

	tests := []struct {
		name     string
		ground   maps.GroundType
		channels int
		wantCh   int
	}{
		{"default surface", maps.GroundDefault, 3, 0},
		{"lava", maps.GroundLava, 3, 1},
		{"water", maps.GroundWater, 3, 2},
		{"single channel", maps.GroundWater, 1, 0},
		{"type beyond channels", maps.GroundWater, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &fixedRaycaster{hit: Hit{Distance: 4.25, Ground: tt.ground}, ok: true}
			buf := CastAll(rc, r3.Vec{}, b, table, 17, AllLayers, tt.channels, nil)

			rays := len(table)
			if len(buf) != rays*tt.channels {
				t.Fatalf("buffer length = %d, want %d", len(buf), rays*tt.channels)
			}
			for ray := 0; ray < rays; ray++ {
				for ch := 0; ch < tt.channels; ch++ {
					got := buf[ray+ch*rays]
					want := float32(0)
					if ch == tt.wantCh {
						want = 0.75
					}
					if got != want {
						t.Errorf("ray %d channel %d = %f, want %f", ray, ch, got, want)
					}
				}
			}
		})
	}
}

func TestCastAllAgainstScene(t *testing.T) {
	scene, _, _ := loadedScene(t)
	p := &Perception{Table: BuildAngleTable(8, 180, 180), Range: 17, Mask: AllLayers, Channels: 3}

	var tr components.Transform
	tr.Position = r3.Vec{X: 5, Y: 1, Z: 5}
	buf := p.Cast(scene, tr.Position, tr.Basis(), nil)

	if len(buf) != p.BufferSize() {
		t.Fatalf("buffer length = %d, want %d", len(buf), p.BufferSize())
	}
	// Rays in the lower half of the diamond look down at the floor.
	hits := 0
	for i, a := range p.Table {
		if a.V < 0 && buf[i] > 0 {
			hits++
		}
		if buf[i] < 0 || buf[i] > 1 {
			t.Errorf("ray %d value %f outside [0, 1]", i, buf[i])
		}
	}
	if hits == 0 {
		t.Error("expected downward rays to hit the floor")
	}
}
