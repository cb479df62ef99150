// Package calculator provides arithmetic and unit conversion tools.
package calculator

import (
	"context"
	"fmt"
	"strconv"

	"github.com/effective-security/toolagent/chatmodel"
	"github.com/effective-security/toolagent/tools"
)

const (
	ToolName        = "calculate"
	ConvertToolName = "convert_units"
)

// Request is the input of the calculate tool.
type Request struct {
	Operation string  `json:"operation" jsonschema:"description=The operation to perform,enum=add,enum=subtract,enum=multiply,enum=divide" validate:"required"`
	A         float64 `json:"a" jsonschema:"description=The first operand"`
	B         float64 `json:"b" jsonschema:"description=The second operand"`
}

// Number is a numeric tool output.
type Number struct {
	Value float64 `json:"value"`
}

func (n *Number) GetContent() string {
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// Calculate performs a basic arithmetic operation.
func Calculate(_ context.Context, req *Request) (*Number, error) {
	var res float64
	switch req.Operation {
	case "add":
		res = req.A + req.B
	case "subtract":
		res = req.A - req.B
	case "multiply":
		res = req.A * req.B
	case "divide":
		if req.B == 0 {
			return nil, chatmodel.NewToolError("division_by_zero", "Cannot divide by zero").
				WithDetail(chatmodel.ObjectFrom("message", "Cannot divide by zero"))
		}
		res = req.A / req.B
	default:
		msg := fmt.Sprintf("Unknown operation: %s", req.Operation)
		return nil, chatmodel.NewToolError("unknown_operation", msg).
			WithDetail(chatmodel.ObjectFrom("message", msg))
	}
	return &Number{Value: res}, nil
}

// New returns the calculate tool.
func New() tools.Tool[Request, Number] {
	return tools.MustFunc(ToolName,
		"Perform basic arithmetic operations (add, subtract, multiply, divide)",
		Calculate)
}

// ConvertRequest is the input of the convert_units tool.
type ConvertRequest struct {
	Value    float64 `json:"value" jsonschema:"description=The value to convert"`
	FromUnit string  `json:"from_unit" jsonschema:"description=The unit to convert from" validate:"required"`
	ToUnit   string  `json:"to_unit" jsonschema:"description=The unit to convert to" validate:"required"`
}

// Conversion is the output of the convert_units tool.
type Conversion struct {
	Value    float64 `json:"value"`
	FromUnit string  `json:"from_unit"`
	Result   float64 `json:"result"`
	ToUnit   string  `json:"to_unit"`
}

func (c *Conversion) GetContent() string {
	return fmt.Sprintf("%v %s = %v %s", c.Value, c.FromUnit, c.Result, c.ToUnit)
}

type unitPair struct{ from, to string }

var conversions = map[unitPair]func(float64) float64{
	{"km", "miles"}:           func(v float64) float64 { return v * 0.621371 },
	{"kilometers", "miles"}:   func(v float64) float64 { return v * 0.621371 },
	{"miles", "km"}:           func(v float64) float64 { return v / 0.621371 },
	{"miles", "kilometers"}:   func(v float64) float64 { return v / 0.621371 },
	{"kg", "pounds"}:          func(v float64) float64 { return v * 2.20462 },
	{"kilograms", "pounds"}:   func(v float64) float64 { return v * 2.20462 },
	{"pounds", "kg"}:          func(v float64) float64 { return v / 2.20462 },
	{"pounds", "kilograms"}:   func(v float64) float64 { return v / 2.20462 },
	{"celsius", "fahrenheit"}: func(v float64) float64 { return v*9/5 + 32 },
	{"fahrenheit", "celsius"}: func(v float64) float64 { return (v - 32) * 5 / 9 },
}

// Convert converts a value between supported units.
func Convert(_ context.Context, req *ConvertRequest) (*Conversion, error) {
	conv, ok := conversions[unitPair{req.FromUnit, req.ToUnit}]
	if !ok {
		msg := fmt.Sprintf("Unsupported conversion: %s to %s", req.FromUnit, req.ToUnit)
		return nil, chatmodel.NewToolError("unsupported_conversion", msg)
	}
	return &Conversion{
		Value:    req.Value,
		FromUnit: req.FromUnit,
		Result:   conv(req.Value),
		ToUnit:   req.ToUnit,
	}, nil
}

// NewConverter returns the convert_units tool.
func NewConverter() tools.Tool[ConvertRequest, Conversion] {
	return tools.MustFunc(ConvertToolName,
		"Convert between units (supports: km-miles, kg-pounds, celsius-fahrenheit)",
		Convert)
}
