package dotgraph_test

import (
	"strings"
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/dispatchd/dispatchd/internal/dotgraph"
	"github.com/dispatchd/dispatchd/internal/graph"
	"github.com/dispatchd/dispatchd/internal/model"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(DotGraphTestSuite))

type DotGraphTestSuite struct{}

func (s *DotGraphTestSuite) TestWriteRendersCallAndObjectEdges(c *gc.C) {
	g := graph.New()
	r0 := g.AddObj()
	r1 := g.AddObj()
	g.AddOp("producer", nil, r0)
	g.AddOp("consumer", []model.ObjectRef{r0}, r1)

	var buf strings.Builder
	c.Assert(dotgraph.Write(&buf, g), gc.IsNil)

	out := buf.String()
	c.Assert(strings.HasPrefix(out, "digraph computation {"), gc.Equals, true)
	c.Assert(strings.Count(out, "obj0 -> call1"), gc.Equals, 1)
	c.Assert(strings.Count(out, "call0 -> obj0"), gc.Equals, 1)
	c.Assert(strings.Count(out, "call1 -> obj1"), gc.Equals, 1)
}
