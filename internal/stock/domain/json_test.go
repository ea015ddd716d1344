package domain

import (
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngredientIDsAreNumbersOnTheWire(t *testing.T) {
	id := snowflake.ID(1790000000000000001)

	raw, err := json.Marshal(Shortage{IngredientID: id, IngredientName: "Vanilla", Required: decimal.NewFromInt(50), Kind: ShortageInsufficient})
	require.NoError(t, err)
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	_, isNumber := generic["ingredient_id"].(float64)
	assert.True(t, isNumber, "ingredient_id: %s", raw)
	assert.Equal(t, "Vanilla", generic["ingredient_name"])
	assert.Equal(t, "insufficient", generic["status"])

	var back Shortage
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, id, back.IngredientID)
	assert.True(t, back.Required.Equal(decimal.NewFromInt(50)))

	raw, err = json.Marshal(RollbackResult{Restored: []RestoredLine{{IngredientID: 30, Quantity: decimal.NewFromInt(5)}}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ingredient_id":30`)

	raw, err = json.Marshal(ConsumptionDetail{IngredientID: 30, Lines: []LineShare{{MenuName: "Tea", Servings: 1}}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ingredient_id":30`)
	assert.Contains(t, string(raw), `"menu_name":"Tea"`)
}

func TestIngredientIDsDecodeFromEitherForm(t *testing.T) {
	var lines []RestoredLine
	require.NoError(t, json.Unmarshal([]byte(`[{"ingredient_id":30,"unit":"gram"},{"ingredient_id":"40"}]`), &lines))
	require.Len(t, lines, 2)
	assert.Equal(t, snowflake.ID(30), lines[0].IngredientID)
	assert.Equal(t, "gram", lines[0].Unit)
	assert.Equal(t, snowflake.ID(40), lines[1].IngredientID)

	var detail ConsumptionDetail
	require.NoError(t, json.Unmarshal([]byte(`{"ingredient_id":30,"ingredient_name":"Tea"}`), &detail))
	assert.Equal(t, snowflake.ID(30), detail.IngredientID)
	assert.Equal(t, "Tea", detail.IngredientName)
}

func TestReleaseCapsAtOutstandingServings(t *testing.T) {
	d := ConsumptionDetail{Lines: []LineShare{
		{MenuName: "Caffe Latte", PerServing: decimal.NewFromInt(150), Servings: 2},
		{MenuName: "Caffe Latte", Preference: "Vanilla", PerServing: decimal.NewFromInt(150), Servings: 1},
	}}

	got := d.Release(Item{MenuName: "caffe latte", Quantity: 3})
	assert.True(t, got.Equal(decimal.NewFromInt(300)), got.String())
	assert.Zero(t, d.Release(Item{MenuName: "Caffe Latte", Quantity: 1}).IntPart())

	got = d.Release(Item{MenuName: "Caffe Latte", Preference: "Vanilla", Quantity: 1})
	assert.True(t, got.Equal(decimal.NewFromInt(150)), got.String())
}
