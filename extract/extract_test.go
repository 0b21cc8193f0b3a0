package extract

import "testing"

func TestNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"five hundred", 500, true},
		{"two thousand five hundred", 2500, true},
		{"one lakh", 100000, true},
		{"one lakh fifty thousand", 150000, true},
		{"two crore", 20000000, true},
		{"five hundred rupees", 500, true},
		{"twenty-five", 25, true},
		{"send 1,200.50 please", 1200.5, true},
		{"1,00,000", 100000, true},
		{"hundred", 100, true},
		{"2 lakh", 200000, true},
		{"5 thousand rupees", 5000, true},
		{"1.5 lakh", 150000, true},
		{"2 lakh 50 thousand", 250000, true},
		{"3 hundred", 300, true},
		{"1 crore 20 lakh", 12000000, true},
		{"2 5", 2, true},
		{"xyz", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := Number(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Number(%q) = %v, %v; want %v, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestIdentifier(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"arvind at paytm", "arvind@paytm", true},
		{"Arvind at PayTM", "arvind@paytm", true},
		{"it's ravi dot kumar at okaxis", "ravi.kumar@okaxis", true},
		{"my upi id is meena at ybl", "meena@ybl", true},
		{"send it to priya@okicici please", "priya@okicici", true},
		{"send 500 to arvind at paytm", "arvind@paytm", true},
		{"arvind at the rate paytm", "arvind@paytm", true},
		{"pay ravi underscore k at okhdfcbank", "ravi_k@okhdfcbank", true},
		{"meena at gmail dot com.", "meena@gmail.com", true},
		{"just some text", "", false},
		{"at", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := Identifier(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("Identifier(%q) = %q, %v; want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	if !IsIdentifier("arvind@paytm") {
		t.Error("expected arvind@paytm to be an identifier")
	}
	if IsIdentifier("arvind paytm") {
		t.Error("expected plain words to be rejected")
	}
}
