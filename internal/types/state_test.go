package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCloneIsDeep(t *testing.T) {
	orig := GameState{
		Elixir:   Known(5),
		MyTowers: []Tower{{Class: "MyKingTower", Health: Known(4000)}},
		Cards:    []Card{{Class: "MyPekkaDeck"}},
	}

	cp := orig.Clone()
	cp.MyTowers[0].Health = Known(1)
	cp.Cards[0].Class = "changed"

	if orig.MyTowers[0].Health.Value != 4000 {
		t.Errorf("clone shares tower backing array: got %v", orig.MyTowers[0].Health)
	}
	if orig.Cards[0].Class != "MyPekkaDeck" {
		t.Errorf("clone shares card backing array: got %q", orig.Cards[0].Class)
	}
}

func TestReadingJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Reading `json:"a"`
		B Reading `json:"b"`
	}{A: Known(7)})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if got, want := string(b), `{"a":7,"b":null}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}

	var r Reading
	if err := json.Unmarshal([]byte("null"), &r); err != nil || r.Known {
		t.Errorf("null -> %+v, %v", r, err)
	}
	if err := json.Unmarshal([]byte("3"), &r); err != nil || r != Known(3) {
		t.Errorf("3 -> %+v, %v", r, err)
	}
}

func TestReadingAtLeast(t *testing.T) {
	if Unknown.AtLeast(0) {
		t.Error("unknown reading must never satisfy AtLeast")
	}
	if !Known(8).AtLeast(8) {
		t.Error("Known(8).AtLeast(8) = false")
	}
	if Known(3).AtLeast(4) {
		t.Error("Known(3).AtLeast(4) = true")
	}
}

func TestGameStateString(t *testing.T) {
	s := GameState{
		Elixir:      Unknown,
		EnemyTowers: []Tower{{Class: "KingTower", Health: Known(2534)}},
		Cards: []Card{
			{Class: "MyGiantDeck"},
			{Class: "MyArrowsNext", IsNext: true},
		},
	}
	out := s.String()
	for _, want := range []string{"Elixir: N/A", "KingTower(HP: 2534)", "Hand: [MyGiantDeck]", "Next: MyArrowsNext"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
}

func TestBoundsClamp(t *testing.T) {
	b := Bounds{XMin: 10, YMin: 20, XMax: 100, YMax: 200}
	cases := []struct {
		in, want Point
	}{
		{Point{50, 50}, Point{50, 50}},
		{Point{0, 0}, Point{10, 20}},
		{Point{500, 500}, Point{100, 200}},
		{Point{-5, 150}, Point{10, 150}},
		{Point{10, 200}, Point{10, 200}},
	}
	for _, c := range cases {
		got := b.Clamp(c.in)
		if got != c.want {
			t.Errorf("Clamp(%v) = %v, want %v", c.in, got, c.want)
		}
		if again := b.Clamp(got); again != got {
			t.Errorf("Clamp not idempotent: %v -> %v", got, again)
		}
		if !b.Contains(got) {
			t.Errorf("Clamp(%v) = %v is outside bounds", c.in, got)
		}
	}
}

func TestCenterDistance(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := Box{X1: 30, Y1: 40, X2: 40, Y2: 50}
	if d := CenterDistance(a, b); d != 50 {
		t.Errorf("CenterDistance = %v, want 50", d)
	}
}
