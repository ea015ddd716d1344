package domain

import (
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pantry/pkg/jsonfield"
)

// Ingredient ids leave the stock service as JSON numbers. Decoding accepts
// both numbers and quoted ids.

func (s Shortage) MarshalJSON() ([]byte, error) {
	type plain Shortage
	return json.Marshal(struct {
		IngredientID jsonfield.ID `json:"ingredient_id"`
		plain
	}{jsonfield.ID(s.IngredientID), plain(s)})
}

func (s *Shortage) UnmarshalJSON(b []byte) error {
	type plain Shortage
	aux := struct {
		IngredientID jsonfield.ID `json:"ingredient_id"`
		*plain
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.IngredientID = snowflake.ID(aux.IngredientID)
	return nil
}

func (l RestoredLine) MarshalJSON() ([]byte, error) {
	type plain RestoredLine
	return json.Marshal(struct {
		IngredientID jsonfield.ID `json:"ingredient_id"`
		plain
	}{jsonfield.ID(l.IngredientID), plain(l)})
}

func (l *RestoredLine) UnmarshalJSON(b []byte) error {
	type plain RestoredLine
	aux := struct {
		IngredientID jsonfield.ID `json:"ingredient_id"`
		*plain
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	l.IngredientID = snowflake.ID(aux.IngredientID)
	return nil
}

func (d ConsumptionDetail) MarshalJSON() ([]byte, error) {
	type plain ConsumptionDetail
	return json.Marshal(struct {
		IngredientID jsonfield.ID `json:"ingredient_id"`
		plain
	}{jsonfield.ID(d.IngredientID), plain(d)})
}

func (d *ConsumptionDetail) UnmarshalJSON(b []byte) error {
	type plain ConsumptionDetail
	aux := struct {
		IngredientID jsonfield.ID `json:"ingredient_id"`
		*plain
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	d.IngredientID = snowflake.ID(aux.IngredientID)
	return nil
}
