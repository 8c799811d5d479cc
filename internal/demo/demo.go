// Package demo is the service served and called by cmd/bridge.
package demo

import (
	stderrors "errors"
	"math"
	"strings"
	"sync/atomic"

	"github.com/wippyai/nativebridge/plan"
	"github.com/wippyai/nativebridge/runtime"
	"github.com/wippyai/nativebridge/transcoder"
)

// ErrDivideByZero is raised by divide.
var ErrDivideByZero = stderrors.New("divide by zero")

// SummaryType is the logical type of Summary; it crosses as CBOR.
var SummaryType = plan.Object("demo.Summary")

var (
	Sum = plan.MustMethod(1, "sum",
		[]plan.Param{{Name: "values", Plan: plan.Value(plan.ArrayOf(plan.Int32))}},
		plan.Value(plan.Int32))
	Fill = plan.MustMethod(2, "fill",
		[]plan.Param{{Name: "buf", Plan: plan.Value(plan.ArrayOf(plan.Int8), plan.Out(plan.Transfer{TrimToResult: true}))}},
		plan.Value(plan.Int32))
	Echo = plan.MustMethod(3, "echo",
		[]plan.Param{{Name: "text", Plan: plan.Value(plan.String)}},
		plan.Value(plan.String))
	Divide = plan.MustMethod(4, "divide",
		[]plan.Param{
			{Name: "a", Plan: plan.Value(plan.Int32)},
			{Name: "b", Plan: plan.Value(plan.Int32)},
		},
		plan.Value(plan.Int32), plan.Raises("arithmetic"))
	Summarize = plan.MustMethod(5, "summarize",
		[]plan.Param{{Name: "values", Plan: plan.Value(plan.ArrayOf(plan.Float64))}},
		plan.Custom(SummaryType, nil))
	NewCounter = plan.MustMethod(6, "new-counter",
		[]plan.Param{{Name: "start", Plan: plan.Value(plan.Int64)}},
		plan.Reference(plan.Object("demo.Counter"), plan.SameDirection()))
	Increment = plan.MustMethod(7, "increment", nil, plan.Value(plan.Int64), plan.WithReceiver())
	Version   = plan.MustMethod(8, "version", nil, plan.Value(plan.String), plan.Idempotent())
)

// Definition returns the demo service.
func Definition() *plan.Service {
	svc, err := plan.NewService("demo", Sum, Fill, Echo, Divide, Summarize, NewCounter, Increment, Version)
	if err != nil {
		panic(err)
	}
	return svc
}

// Summary describes a series of values.
type Summary struct {
	Count int     `cbor:"count"`
	Min   float64 `cbor:"min"`
	Max   float64 `cbor:"max"`
	Mean  float64 `cbor:"mean"`
}

// Counter is the object behind new-counter references.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Increment() int64 {
	return c.n.Add(1)
}

// Service implements the demo methods.
type Service struct {
	Name string
}

func (s *Service) Sum(values []int32) int32 {
	var total int32
	for _, v := range values {
		total += v
	}
	return total
}

func (s *Service) Fill(buf []byte) int32 {
	return int32(copy(buf, s.Name))
}

func (s *Service) Echo(text string) string {
	return strings.ToUpper(text)
}

func (s *Service) Divide(a, b int32) (int32, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	return a / b, nil
}

func (s *Service) Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	sum := Summary{Count: len(values), Min: math.Inf(1), Max: math.Inf(-1)}
	var total float64
	for _, v := range values {
		sum.Min = math.Min(sum.Min, v)
		sum.Max = math.Max(sum.Max, v)
		total += v
	}
	sum.Mean = total / float64(len(values))
	return sum
}

func (s *Service) NewCounter(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

func (s *Service) Version() string {
	return "nativebridge-demo/1"
}

// Register installs the demo marshallers and error sentinels. Both the
// serving and the calling runtime need them.
func Register(rt *runtime.Runtime) error {
	if _, err := rt.Marshallers().Register(SummaryType, transcoder.CBOR[Summary]{}); err != nil {
		return err
	}
	return rt.Errors().RegisterSentinel(ErrDivideByZero)
}

// Bind registers the demo types on rt and binds a Service named name.
func Bind(rt *runtime.Runtime, name string) (*runtime.Binding, error) {
	if err := Register(rt); err != nil {
		return nil, err
	}
	return runtime.Bind(Definition(), &Service{Name: name})
}
