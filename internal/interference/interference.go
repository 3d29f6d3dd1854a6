// Package interference builds the undirected interference graph (stage 7)
// consumed by colour's greedy saturation allocator.
//
// Grounded on original_source/compiler/src/passes/assign/build_interference.rs:
// for every instruction, each write-target interferes with every element of
// its live-after set except itself, with the usual mov src/dst exception so
// a variable copied into another doesn't needlessly interfere with its own
// source (the two are candidates for register coalescing, not conflict).
package interference

import (
	"github.com/loomlang/loomc/internal/liveness"
	"github.com/loomlang/loomc/internal/x86var"
)

// Graph is an adjacency-set undirected graph over LArg nodes. All 16
// physical registers are always present, even with no edges, so colour can
// pre-colour them uniformly.
type Graph struct {
	Adj map[liveness.LArg]map[liveness.LArg]bool
}

func NewGraph() *Graph {
	g := &Graph{Adj: map[liveness.LArg]map[liveness.LArg]bool{}}
	for r := x86var.RAX; r <= x86var.R15; r++ {
		g.AddNode(liveness.LArg{IsReg: true, Reg: r})
	}
	return g
}

func (g *Graph) AddNode(a liveness.LArg) {
	if _, ok := g.Adj[a]; !ok {
		g.Adj[a] = map[liveness.LArg]bool{}
	}
}

func (g *Graph) AddEdge(a, b liveness.LArg) {
	if a == b {
		return
	}
	g.AddNode(a)
	g.AddNode(b)
	g.Adj[a][b] = true
	g.Adj[b][a] = true
}

func (g *Graph) Neighbors(a liveness.LArg) []liveness.LArg {
	var out []liveness.LArg
	for n := range g.Adj[a] {
		out = append(out, n)
	}
	return out
}

// Build walks every block's instructions alongside their live-after sets
// and records the interference edges each instruction implies.
func Build(prog *x86var.Program, live *liveness.Annotated) *Graph {
	g := NewGraph()
	for _, label := range prog.Order {
		block := prog.Blocks[label]
		afters := live.LiveAfter[label]
		for i, instr := range block.Instrs {
			after := afters[i]
			if instr.Kind == x86var.IMov {
				dst, dstOK := operandArg(instr.Dst)
				src, srcOK := operandArg(instr.Src)
				if !dstOK {
					continue
				}
				for v := range after {
					if v == dst {
						continue
					}
					if srcOK && v == src {
						continue
					}
					g.AddEdge(dst, v)
				}
				continue
			}
			for _, w := range writeTargets(instr) {
				for v := range after {
					if v == w {
						continue
					}
					g.AddEdge(w, v)
				}
			}
		}
	}
	return g
}

func operandArg(op x86var.Operand) (liveness.LArg, bool) {
	switch op.Kind {
	case x86var.OpReg:
		return liveness.LArg{IsReg: true, Reg: op.Reg}, true
	case x86var.OpVar:
		return liveness.LArg{Sym: op.Var}, true
	default:
		return liveness.LArg{}, false
	}
}

func regArg(r x86var.Reg) liveness.LArg { return liveness.LArg{IsReg: true, Reg: r} }

// writeTargets lists the LArg nodes an instruction writes, mirroring the
// write half of liveness's transfer classification.
func writeTargets(instr x86var.Instr) []liveness.LArg {
	var out []liveness.LArg
	add := func(op x86var.Operand) {
		if a, ok := operandArg(op); ok {
			out = append(out, a)
		}
	}
	switch instr.Kind {
	case x86var.IAdd, x86var.ISub, x86var.IAnd, x86var.IOr, x86var.IXor:
		add(instr.Dst)
	case x86var.IMov:
		add(instr.Dst)
	case x86var.INeg, x86var.INot:
		add(instr.Dst)
	case x86var.IPop:
		add(instr.Dst)
	case x86var.ICallDirect, x86var.ICallIndirect, x86var.ISyscall:
		for _, r := range x86var.CallerSaved {
			out = append(out, regArg(r))
		}
	case x86var.IDiv:
		out = append(out, regArg(x86var.RDX), regArg(x86var.RAX))
	case x86var.IMul:
		out = append(out, regArg(x86var.RDX), regArg(x86var.RAX))
	case x86var.ICqo:
		out = append(out, regArg(x86var.RDX))
	case x86var.ISetCC:
		out = append(out, regArg(x86var.RAX))
	case x86var.ILoadLabel:
		add(instr.Dst)
	}
	return out
}
