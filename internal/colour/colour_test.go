package colour

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomlang/loomc/internal/interference"
	"github.com/loomlang/loomc/internal/liveness"
	"github.com/loomlang/loomc/internal/symtab"
	"github.com/loomlang/loomc/internal/x86var"
)

// Colouring correctness (spec.md §8 universal property): for every edge
// (a, b) in the interference graph, the final colour map must assign a != b.
func TestColourSatisfiesEveryEdge(t *testing.T) {
	tbl := symtab.NewTable()
	a := liveness.LArg{Sym: tbl.Fresh("a")}
	b := liveness.LArg{Sym: tbl.Fresh("b")}
	c := liveness.LArg{Sym: tbl.Fresh("c")}

	g := interference.NewGraph()
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(a, c)

	result := Colour(g)
	for n1, neighbours := range g.Adj {
		for n2 := range neighbours {
			require.NotEqual(t, result.Colours[n1], result.Colours[n2], "edge (%v,%v) shares a colour", n1, n2)
		}
	}
}

func TestColourRespectsPrecolouredRegisters(t *testing.T) {
	tbl := symtab.NewTable()
	v := liveness.LArg{Sym: tbl.Fresh("v")}
	raxNode := liveness.LArg{IsReg: true, Reg: x86var.RAX}

	g := interference.NewGraph()
	g.AddNode(raxNode)
	g.AddNode(v)
	g.AddEdge(raxNode, v)

	result := Colour(g)
	require.NotEqual(t, result.Colours[raxNode], result.Colours[v])
	require.Equal(t, RegColour(x86var.RAX), result.Colours[raxNode])
}

func TestColourManyMutuallyInterferingVariablesAllDistinct(t *testing.T) {
	tbl := symtab.NewTable()
	var nodes []liveness.LArg
	g := interference.NewGraph()
	for i := 0; i < 5; i++ {
		n := liveness.LArg{Sym: tbl.Fresh("v")}
		nodes = append(nodes, n)
		g.AddNode(n)
	}
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			g.AddEdge(nodes[i], nodes[j])
		}
	}

	result := Colour(g)
	seen := map[int]bool{}
	for _, n := range nodes {
		c := result.Colours[n]
		require.False(t, seen[c], "colour %d reused among mutually interfering variables", c)
		seen[c] = true
	}
}
