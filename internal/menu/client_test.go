package menu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipesBatch(t *testing.T) {
	var gotNames []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/recipes/batch", r.URL.Path)
		var body struct {
			MenuNames []string `json:"menu_names"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotNames = body.MenuNames
		_, _ = w.Write([]byte(`{"recipes":{
			"Caffe Latte":[{"ingredient_id":1,"quantity":18,"unit":"gram"},{"ingredient_id":"2","quantity":"150.5","unit":"milliliter"}],
			"Ghost":[]
		}}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, nil)
	recipes, err := client.Recipes(context.Background(), []string{"Caffe Latte", "Ghost", "Unknown"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Caffe Latte", "Ghost", "Unknown"}, gotNames)
	require.Len(t, recipes["Caffe Latte"], 2)
	assert.Equal(t, snowflake.ID(1), recipes["Caffe Latte"][0].IngredientID)
	assert.Equal(t, "18", recipes["Caffe Latte"][0].Quantity.String())
	assert.Equal(t, snowflake.ID(2), recipes["Caffe Latte"][1].IngredientID)
	assert.Equal(t, "150.5", recipes["Caffe Latte"][1].Quantity.String())
	assert.Empty(t, recipes["Ghost"])
	assert.Empty(t, recipes["Unknown"])
}

func TestMenuNamesCollectsAliases(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"base_name_en":"Caffe Latte","base_name_id":"Kafe Latte"},
			{"menu_name":"Tea"},
			{"name":"Tea"},
			{"price":10}
		]`))
	}))
	defer server.Close()

	names, err := NewHTTPClient(server.URL, nil, nil).MenuNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Caffe Latte", "Kafe Latte", "Tea"}, names)
}

func TestFlavorsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/menu/by_name/Caffe Latte/flavors" {
			_, _ = w.Write([]byte(`[{"flavor_name_en":"Vanilla","flavor_name_id":"Vanila"},{"flavor_name":"Caramel"}]`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, nil)

	flavors, err := client.Flavors(context.Background(), "Caffe Latte")
	require.NoError(t, err)
	assert.Equal(t, []string{"Vanilla", "Vanila", "Caramel"}, flavors)

	_, err = client.Flavors(context.Background(), "Nope")
	assert.ErrorIs(t, err, ErrMenuNotFound)
}

func TestUpstreamFailureIsTyped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, nil, nil).MenuNames(context.Background())
	var menuErr *Error
	require.ErrorAs(t, err, &menuErr)
	assert.Equal(t, http.StatusBadGateway, menuErr.StatusCode)
	assert.Equal(t, "menu", menuErr.Upstream())
}
