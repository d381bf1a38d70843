package functions

import "errors"

// gadget is the introspection target used across the package tests.
type gadget struct {
	Label string
	Count int64
	Motor *motor
}

type motor struct {
	RPM int
}

func (g *gadget) Describe() string { return "gadget " + g.Label }

func (g *gadget) Scale(f int64) int64 { return g.Count * f }

func (g *gadget) Sum(ns ...int64) int64 {
	var total int64
	for _, n := range ns {
		total += n
	}
	return total
}

func (g *gadget) Engine() *motor { return g.Motor }

func (g *gadget) Fail() error { return errors.New("gadget failure") }

func newGadget() *gadget {
	return &gadget{Label: "alpha", Count: 3, Motor: &motor{RPM: 900}}
}
