package event

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func constant(suppress bool) Filter[tick] {
	return FilterFunc[tick](func(any, tick) bool { return suppress })
}

func TestMultiFilterGates(t *testing.T) {
	for _, f1 := range []bool{false, true} {
		for _, f2 := range []bool{false, true} {
			t.Run(fmt.Sprintf("suppress_%v_%v", f1, f2), func(t *testing.T) {
				and := And(constant(f1), constant(f2))
				or := Or(constant(f1), constant(f2))

				pass1, pass2 := !f1, !f2
				assert.Equal(t, !(pass1 && pass2), and.Suppress(nil, tick{}))
				assert.Equal(t, !(pass1 || pass2), or.Suppress(nil, tick{}))
			})
		}
	}
}

func TestMultiFilterDefaults(t *testing.T) {
	m := NewMultiFilter[tick](GateOr)
	assert.False(t, m.Suppress(nil, tick{}))
	assert.Equal(t, GateOr, Gate(0))
	assert.Equal(t, "or", m.Gate().String())

	and := And[tick](nil, symbolIs("005930"))
	assert.Equal(t, 1, and.Len())
	assert.Equal(t, "and", and.Gate().String())
}

func TestMultiFilterNests(t *testing.T) {
	samsung := Or(symbolIs("005930"), symbolIs("000660"))
	expensive := FilterFunc[tick](func(_ any, args tick) bool { return args.price < 100000 })
	f := And[tick](samsung, expensive)

	assert.False(t, f.Suppress(nil, tick{"000660", 180000}))
	assert.True(t, f.Suppress(nil, tick{"005930", 71000}))
	assert.True(t, f.Suppress(nil, tick{"035720", 500000}))
}
