package inventory

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerCodec(t *testing.T) {
	t.Run("round trip keeps slots and empties", func(t *testing.T) {
		c := NewContainer(InventorySlots)
		c[0] = Stack{Item: "minecraft:diamond", Count: 12}
		c[35] = Stack{Item: "minecraft:bow", Count: 1, Damage: 40}

		enc, err := EncodeContainer(c)
		require.NoError(t, err)

		got, err := DecodeContainer(enc)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	})

	t.Run("encoding is deterministic", func(t *testing.T) {
		c := Container{{Item: "minecraft:apple", Count: 3}}
		a, err := EncodeContainer(c)
		require.NoError(t, err)
		b, err := EncodeContainer(c.Clone())
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("nil encodes as empty", func(t *testing.T) {
		enc, err := EncodeContainer(nil)
		require.NoError(t, err)
		got, err := DecodeContainer(enc)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestDecodeContainerRejects(t *testing.T) {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	cases := map[string]string{
		"not base64":         "%%%",
		"not json":           b64("{"),
		"negative count":     b64(`[{"item":"a","count":-1}]`),
		"oversized stack":    b64(`[{"item":"a","count":65}]`),
		"count without item": b64(`[{"count":2}]`),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeContainer(in)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestContentsClone(t *testing.T) {
	c := NewContents()
	c.Inventory[0] = Stack{Item: "minecraft:stone", Count: 1}

	cp := c.Clone()
	cp.Inventory[0].Count = 64

	assert.Equal(t, 1, c.Inventory[0].Count)
	assert.Equal(t, MaxHunger, cp.Hunger)
}
