// Package colour implements stage 8: Brélaz-style greedy saturation
// register allocation over the interference graph, with the sixteen
// physical registers pre-coloured to fixed colours so variable colouring
// naturally avoids registers already in active use at each program point.
//
// Grounded on original_source/compiler/src/passes/assign/colour_graph.rs
// for both the saturation-ordering loop and the exact precolour table.
package colour

import (
	"sort"

	"github.com/loomlang/loomc/internal/interference"
	"github.com/loomlang/loomc/internal/liveness"
	"github.com/loomlang/loomc/internal/x86var"
)

// precolourRegs is the fixed reg<->colour bijection from the spec's colouring
// table: colour -5 is R15 through colour 10 is R14, covering all sixteen
// general-purpose registers.
var precolourRegs = map[int]x86var.Reg{
	-5: x86var.R15, -4: x86var.R11, -3: x86var.RBP, -2: x86var.RSP, -1: x86var.RAX,
	0: x86var.RCX, 1: x86var.RDX, 2: x86var.RSI, 3: x86var.RDI, 4: x86var.R8,
	5: x86var.R9, 6: x86var.R10, 7: x86var.RBX, 8: x86var.R12, 9: x86var.R13, 10: x86var.R14,
}

var regColour = func() map[x86var.Reg]int {
	m := map[x86var.Reg]int{}
	for c, r := range precolourRegs {
		m[r] = c
	}
	return m
}()

// RegColour returns r's fixed precolour.
func RegColour(r x86var.Reg) int { return regColour[r] }

// ColourOfReg maps a colour in [-5,10] back to its physical register.
func ColourOfReg(c int) (x86var.Reg, bool) {
	r, ok := precolourRegs[c]
	return r, ok
}

// Result is the colour assigned to every node, plus the stack-frame size
// spilled variables require.
type Result struct {
	Colours   map[liveness.LArg]int
	FrameSize int
}

// Colour runs saturation-based greedy colouring over g, producing a colour
// for every variable node (physical register nodes already carry their
// fixed colour and never change).
func Colour(g *interference.Graph) *Result {
	colours := map[liveness.LArg]int{}
	for n := range g.Adj {
		if n.IsReg {
			colours[n] = regColour[n.Reg]
		}
	}

	var pending []liveness.LArg
	for n := range g.Adj {
		if !n.IsReg {
			pending = append(pending, n)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Sym.ID < pending[j].Sym.ID })

	remaining := map[liveness.LArg]bool{}
	for _, n := range pending {
		remaining[n] = true
	}

	for len(remaining) > 0 {
		best := pickHighestSaturation(g, remaining, colours)
		used := map[int]bool{}
		for _, nb := range g.Neighbors(best) {
			if c, ok := colours[nb]; ok {
				used[c] = true
			}
		}
		c := 0
		for used[c] {
			c++
		}
		colours[best] = c
		delete(remaining, best)
	}

	maxSpill := 10
	for n, c := range colours {
		if !n.IsReg && c > maxSpill {
			maxSpill = c
		}
	}
	frame := 0
	if maxSpill > 10 {
		frame = roundUp16(8 * (maxSpill - 10))
	}
	return &Result{Colours: colours, FrameSize: frame}
}

func pickHighestSaturation(g *interference.Graph, remaining map[liveness.LArg]bool, colours map[liveness.LArg]int) liveness.LArg {
	var best liveness.LArg
	bestSat := -1
	first := true
	var candidates []liveness.LArg
	for n := range remaining {
		candidates = append(candidates, n)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Sym.ID < candidates[j].Sym.ID })
	for _, n := range candidates {
		used := map[int]bool{}
		for _, nb := range g.Neighbors(n) {
			if c, ok := colours[nb]; ok {
				used[c] = true
			}
		}
		sat := len(used)
		if first || sat > bestSat {
			best, bestSat, first = n, sat, false
		}
	}
	return best
}

func roundUp16(n int) int {
	if n%16 == 0 {
		return n
	}
	return n + (16 - n%16)
}
