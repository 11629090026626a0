package model_test

import (
	"testing"

	gc "gopkg.in/check.v1"

	"github.com/dispatchd/dispatchd/internal/model"
)

func Test(t *testing.T) {
	gc.TestingT(t)
}

var _ = gc.Suite(new(ModelTestSuite))

type ModelTestSuite struct{}

func (s *ModelTestSuite) TestArgsToSendFiltersSortsAndDedups(c *gc.C) {
	args := []model.ObjectRef{1, 4, 5, 5, 2, 2, 3, 3}
	present := map[model.ObjectRef]struct{}{1: {}, 2: {}, 4: {}}

	got := model.ArgsToSend(args, func(ref model.ObjectRef) bool {
		_, ok := present[ref]
		return !ok
	})
	c.Assert(got, gc.DeepEquals, []model.ObjectRef{3, 5})
}

func (s *ModelTestSuite) TestArgsToSendEmptyWhenAllPresent(c *gc.C) {
	args := []model.ObjectRef{1, 1, 2}
	got := model.ArgsToSend(args, func(model.ObjectRef) bool { return false })
	c.Assert(got, gc.HasLen, 0)
}

func (s *ModelTestSuite) TestCallResultBound(c *gc.C) {
	call := model.NewCall("fn", []model.ObjectRef{1, 2})
	c.Assert(call.ResultBound(), gc.Equals, false)

	call.BindResult(7)
	c.Assert(call.ResultBound(), gc.Equals, true)
	c.Assert(call.Result, gc.Equals, model.ObjectRef(7))
}
