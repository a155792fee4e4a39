package traceparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiv1 "github.com/fyrsmithlabs/tracelens/pkg/api/v1"
)

const calcTrace = "Traceback (most recent call last):\n" +
	"  File \"calc.py\", line 15, in <module>\n" +
	"    result = divide(10, 0)\n" +
	"  File \"calc.py\", line 5, in divide\n" +
	"    return a / b\n" +
	"ZeroDivisionError: division by zero"

func TestParser_Parse(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		in   string
		want []apiv1.Frame
	}{
		{
			name: "two frames in source order",
			in:   calcTrace,
			want: []apiv1.Frame{
				{File: "calc.py", Line: 15, Function: "<module>", Code: "result = divide(10, 0)"},
				{File: "calc.py", Line: 5, Function: "divide", Code: "return a / b"},
			},
		},
		{
			name: "empty input",
			in:   "",
			want: []apiv1.Frame{},
		},
		{
			name: "no frames",
			in:   "just some log output\nValueError: bad",
			want: []apiv1.Frame{},
		},
		{
			name: "consecutive headers leave code empty",
			in: "  File \"a.py\", line 1, in outer\n" +
				"  File \"b.py\", line 2, in inner\n" +
				"    boom()",
			want: []apiv1.Frame{
				{File: "a.py", Line: 1, Function: "outer", Code: ""},
				{File: "b.py", Line: 2, Function: "inner", Code: "boom()"},
			},
		},
		{
			name: "header on last line",
			in:   "Traceback (most recent call last):\n  File \"x.py\", line 9, in run",
			want: []apiv1.Frame{
				{File: "x.py", Line: 9, Function: "run", Code: ""},
			},
		},
		{
			name: "non-numeric line drops only that frame",
			in: "  File \"a.py\", line abc, in broken\n" +
				"    nope()\n" +
				"  File \"b.py\", line 3, in ok\n" +
				"    fine()",
			want: []apiv1.Frame{
				{File: "b.py", Line: 3, Function: "ok", Code: "fine()"},
			},
		},
		{
			name: "zero line number dropped",
			in:   "  File \"a.py\", line 0, in f\n    x",
			want: []apiv1.Frame{},
		},
		{
			name: "windows line endings",
			in:   "  File \"w.py\", line 7, in main\r\n    go()\r\n",
			want: []apiv1.Frame{
				{File: "w.py", Line: 7, Function: "main", Code: "go()"},
			},
		},
		{
			name: "path with spaces",
			in:   "  File \"/srv/my app/main.py\", line 42, in handler\n    handle(req)",
			want: []apiv1.Frame{
				{File: "/srv/my app/main.py", Line: 42, Function: "handler", Code: "handle(req)"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParser_FrameCountMatchesHeaders(t *testing.T) {
	p := NewParser()
	text := "Traceback (most recent call last):\n"
	for i := 1; i <= 20; i++ {
		text += "  File \"m.py\", line 1, in f\n    call()\n"
	}
	text += "RuntimeError: deep"

	frames := p.Parse(text)
	assert.Len(t, frames, 20)
}
