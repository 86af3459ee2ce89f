package mongodb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type quantityDoc struct {
	Qty decimal.Decimal `bson:"qty"`
}

func TestDecimalCodec_RoundTripsAsDecimal128(t *testing.T) {
	reg := NewRegistry()

	data, err := bson.MarshalWithRegistry(reg, quantityDoc{Qty: decimal.RequireFromString("12.345")})
	require.NoError(t, err)

	raw := bson.Raw(data)
	assert.Equal(t, bsontype.Decimal128, raw.Lookup("qty").Type)

	var out quantityDoc
	require.NoError(t, bson.UnmarshalWithRegistry(reg, data, &out))
	assert.True(t, out.Qty.Equal(decimal.RequireFromString("12.345")))
}

func TestDecimalCodec_DecodesOtherNumericTypes(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{name: "int32", value: int32(7), want: "7"},
		{name: "int64", value: int64(-3), want: "-3"},
		{name: "double", value: 2.5, want: "2.5"},
		{name: "string", value: "0.001", want: "0.001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := bson.Marshal(bson.M{"qty": tt.value})
			require.NoError(t, err)

			var out quantityDoc
			require.NoError(t, bson.UnmarshalWithRegistry(reg, data, &out))
			assert.True(t, out.Qty.Equal(decimal.RequireFromString(tt.want)), out.Qty.String())
		})
	}
}

func TestDecimalCodec_RejectsBoolean(t *testing.T) {
	data, err := bson.Marshal(bson.M{"qty": true})
	require.NoError(t, err)

	var out quantityDoc
	assert.Error(t, bson.UnmarshalWithRegistry(NewRegistry(), data, &out))
}
