package types

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want string
	}{
		{"string id", Record{"id": "u-1"}, "u-1"},
		{"int id", Record{"id": 42}, "42"},
		{"json float id", Record{"id": 7.0}, "7"},
		{"json number id", Record{"id": json.Number("99")}, "99"},
		{"missing id", Record{"name": "Ann"}, ""},
		{"nil id", Record{"id": nil}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.ID())
			assert.Equal(t, tt.want != "", tt.rec.HasID())
		})
	}
}

func TestRecordFromJSON(t *testing.T) {
	var records []Record
	require.NoError(t, json.Unmarshal([]byte(`[{"id":1,"name":"Bob"},{"id":"2","name":"Ann"}]`), &records))
	assert.Equal(t, "1", records[0].ID())
	assert.Equal(t, "2", records[1].ID())
}

func TestRecordGetAndClone(t *testing.T) {
	rec := Record{"id": "1", "name": "Ann", "last_login": nil}

	v, ok := rec.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Ann", v)

	_, ok = rec.Get("last_login")
	assert.False(t, ok)
	_, ok = rec.Get("missing")
	assert.False(t, ok)

	clone := rec.Clone()
	clone["name"] = "Bob"
	assert.Equal(t, "Ann", rec["name"])
}

func TestIDSet(t *testing.T) {
	set := NewIDSet("1", "2", "2")
	assert.Len(t, set, 2)
	assert.True(t, set.Has("1"))
	assert.False(t, set.Has("3"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNull, KindOf(nil))
	assert.Equal(t, KindString, KindOf(""))
	assert.Equal(t, KindNumber, KindOf(3))
	assert.Equal(t, KindNumber, KindOf(2.5))
	assert.Equal(t, KindNumber, KindOf(json.Number("1")))
	assert.Equal(t, KindBool, KindOf(true))
	assert.Equal(t, KindOther, KindOf([]string{"x"}))
	assert.Equal(t, "number", KindNumber.String())
	assert.Equal(t, "other", KindOther.String())
}

func TestAsNumber(t *testing.T) {
	n, ok := AsNumber(int64(5))
	assert.True(t, ok)
	assert.Equal(t, 5.0, n)

	n, ok = AsNumber(json.Number("2.5"))
	assert.True(t, ok)
	assert.Equal(t, 2.5, n)

	_, ok = AsNumber(json.Number("nope"))
	assert.False(t, ok)
	_, ok = AsNumber("5")
	assert.False(t, ok)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, "3", FormatValue(3.0))
	assert.Equal(t, "3.25", FormatValue(3.25))
	assert.Equal(t, "-12", FormatValue(float32(-12)))
	assert.Equal(t, "1e+20", FormatValue(1e20))
	assert.Equal(t, "+Inf", FormatValue(math.Inf(1)))
	assert.Equal(t, "[a b]", FormatValue([]string{"a", "b"}))
}

func TestRequestContext(t *testing.T) {
	t.Run("values", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), ContextKeyUserID, "user789")
		ctx = context.WithValue(ctx, ContextKeySessionID, "session101")
		ctx = WithRequestID(ctx, "req456")

		reqCtx := GetRequestContext(ctx)
		assert.Equal(t, "user789", reqCtx.UserID)
		assert.Equal(t, "session101", reqCtx.SessionID)
		assert.Equal(t, "req456", reqCtx.RequestID)
	})

	t.Run("empty context", func(t *testing.T) {
		reqCtx := GetRequestContext(context.Background())
		assert.Empty(t, reqCtx.UserID)
		assert.Empty(t, reqCtx.SessionID)
		assert.Empty(t, reqCtx.RequestID)
	})

	t.Run("wrong value type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), ContextKeyUserID, 123)
		assert.Empty(t, GetRequestContext(ctx).UserID)
	})
}

func BenchmarkRecordID(b *testing.B) {
	rec := Record{"id": 12345.0, "name": "Ann"}
	for i := 0; i < b.N; i++ {
		_ = rec.ID()
	}
}
