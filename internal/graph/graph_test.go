package graph_test

import (
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/dispatchd/dispatchd/internal/graph"
	"github.com/dispatchd/dispatchd/internal/model"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(GraphTestSuite))

type GraphTestSuite struct{}

func (s *GraphTestSuite) TestAddObjAllocatesDenseRefs(c *gc.C) {
	g := graph.New()
	c.Assert(g.AddObj(), gc.Equals, model.ObjectRef(0))
	c.Assert(g.AddObj(), gc.Equals, model.ObjectRef(1))
	c.Assert(g.NumObjs(), gc.Equals, 2)
}

func (s *GraphTestSuite) TestAddOpRecordsCallEdge(c *gc.C) {
	g := graph.New()
	r0 := g.AddObj()
	r1 := g.AddObj()
	g.AddOp("consumer", []model.ObjectRef{r0}, r1)

	calls := g.Calls()
	c.Assert(calls, gc.HasLen, 1)
	c.Assert(calls[0].Name, gc.Equals, "consumer")
	c.Assert(calls[0].Args, gc.DeepEquals, []model.ObjectRef{r0})
	c.Assert(calls[0].Result, gc.Equals, r1)
}
