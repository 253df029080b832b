package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_JSONRoundTrip(t *testing.T) {
	in := Values{
		"name":  String("Asha"),
		"seats": Number(2),
		"vip":   Bool(true),
		"ai_event": Map(Values{
			"intent": String("book_flight"),
		}),
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out Values
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.Equal(t, KindString, out["name"].Kind())
	assert.Equal(t, KindNumber, out["seats"].Kind())
	assert.Equal(t, KindBool, out["vip"].Kind())
	nested, ok := out["ai_event"].AsMap()
	require.True(t, ok)
	intent, _ := nested.StringValue("intent")
	assert.Equal(t, "book_flight", intent)
}

func TestValue_FromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny([]string{"a"})
	assert.Error(t, err)

	_, err = ValuesFromMap(map[string]any{"ok": "x", "bad": struct{}{}})
	assert.Error(t, err)
}

func TestValue_MapIsCopied(t *testing.T) {
	inner := Values{"k": String("v")}
	v := Map(inner)
	inner["k"] = String("changed")

	m, _ := v.AsMap()
	got, _ := m.StringValue("k")
	assert.Equal(t, "v", got)
}

func TestBookingData_NextMissing(t *testing.T) {
	var b BookingData
	field, ok := b.NextMissing()
	require.True(t, ok)
	assert.Equal(t, FieldOrigin, field)

	b.Set(FieldOrigin, "Mumbai")
	b.Set(FieldDestination, "Delhi")
	field, _ = b.NextMissing()
	assert.Equal(t, FieldDate, field)

	b.Set(FieldDate, "tomorrow")
	b.Set(FieldPassengerName, "Asha Rao")
	b.Set(FieldContact, "9876543210")
	_, ok = b.NextMissing()
	assert.False(t, ok)
	assert.True(t, b.Complete())
}

func TestBookingFromValues(t *testing.T) {
	b := BookingFromValues(Values{
		"origin":       String("Pune"),
		"booking_type": String("domestic"),
		"seats":        Number(1),
	})

	origin, ok := b.Get(FieldOrigin)
	require.True(t, ok)
	assert.Equal(t, "Pune", origin)
	kind, _ := b.Get("booking_type")
	assert.Equal(t, "domestic", kind)
	assert.Equal(t, KindNumber, b.Extra["seats"].Kind())
}
