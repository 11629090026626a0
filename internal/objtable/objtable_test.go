package objtable_test

import (
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/dispatchd/dispatchd/internal/model"
	"github.com/dispatchd/dispatchd/internal/objtable"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(ObjTableTestSuite))

type ObjTableTestSuite struct{}

func (s *ObjTableTestSuite) TestRegisterAssignsDenseRefs(c *gc.C) {
	tbl := objtable.New()
	r0 := tbl.Register()
	r1 := tbl.Register()
	c.Assert(r0, gc.Equals, model.ObjectRef(0))
	c.Assert(r1, gc.Equals, model.ObjectRef(1))
	c.Assert(tbl.Len(), gc.Equals, 2)
}

func (s *ObjTableTestSuite) TestAvailableReflectsHolderSet(c *gc.C) {
	tbl := objtable.New()
	r0 := tbl.Register()
	c.Assert(tbl.Available(r0), gc.Equals, false)

	tbl.RegisterResult(r0, model.WorkerID(3))
	c.Assert(tbl.Available(r0), gc.Equals, true)
	c.Assert(tbl.Holders(r0), gc.DeepEquals, []model.WorkerID{3})
}

func (s *ObjTableTestSuite) TestRegisterResultIsDuplicateFree(c *gc.C) {
	tbl := objtable.New()
	r0 := tbl.Register()
	tbl.RegisterResult(r0, model.WorkerID(1))
	tbl.RegisterResult(r0, model.WorkerID(1))
	c.Assert(tbl.Holders(r0), gc.DeepEquals, []model.WorkerID{1})
	c.Assert(tbl.HasHolder(r0, model.WorkerID(1)), gc.Equals, true)
	c.Assert(tbl.HasHolder(r0, model.WorkerID(2)), gc.Equals, false)
}
