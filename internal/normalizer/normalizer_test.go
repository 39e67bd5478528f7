package normalizer_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/young1lin/agentsearch/internal/models"
	"github.com/young1lin/agentsearch/internal/normalizer"
)

func normalizeJSON(t *testing.T, body string) []models.DisplayItem {
	t.Helper()
	payload, err := normalizer.Decode([]byte(body))
	require.NoError(t, err)
	return normalizer.Normalize(payload)
}

func titles(items []models.DisplayItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestNormalize_PayloadPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
	}{
		{"top-level array", `[{"title":"A"},{"title":"B"}]`, []string{"A", "B"}},
		{"result field", `{"result":[{"title":"A"},{"title":"B"}]}`, []string{"A", "B"}},
		{"items field", `{"items":[{"name":"N"}]}`, []string{"N"}},
		{"messages field", `{"messages":[{"text":"T"}]}`, []string{"T"}},
		{"videos field", `{"videos":[{"title":"V"}]}`, []string{"V"}},
		{"reply array", `{"reply":[{"title":"R"}]}`, []string{"R"}},
		{"message array", `{"message":[{"title":"M"}]}`, []string{"M"}},
		{"result wins over items", `{"items":[{"title":"I"}],"result":[{"title":"R"}]}`, []string{"R"}},
		{"sequence wins over text", `{"text":"hello","videos":[{"title":"V"}]}`, []string{"V"}},
		{"answer text", `{"answer":"hello"}`, []string{"hello"}},
		{"text before answer", `{"answer":"a","text":"t"}`, []string{"t"}},
		{"message text", `{"message":"m"}`, []string{"m"}},
		{"replyText", `{"replyText":"r"}`, []string{"r"}},
		{"empty text skipped", `{"text":"","answer":"a"}`, []string{"a"}},
		{"numeric text", `{"answer":42}`, []string{"42"}},
		{"unrecognized object", `{"foo":"bar"}`, []string{`{"foo":"bar"}`}},
		{"empty object", `{}`, []string{`{}`}},
		{"reply string is text-like but not listed", `{"reply":"x"}`, []string{`{"reply":"x"}`}},
		{"serialization keeps markup", `{"a":"<b>"}`, []string{`{"a":"<b>"}`}},
		{"serialization sorts keys", `{"b":1,"a":2}`, []string{`{"a":2,"b":1}`}},
		{"serialization shortens numbers", `{"n":1.50,"m":[2.0,1e3],"o":{"p":-0.250}}`, []string{`{"m":[2,1000],"n":1.5,"o":{"p":-0.25}}`}},
		{"empty array", `[]`, []string{}},
		{"null", `null`, []string{}},
		{"bare string", `"hello"`, []string{}},
		{"number", `7`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, titles(normalizeJSON(t, tt.body)))
		})
	}
}

func TestNormalize_Projection(t *testing.T) {
	t.Parallel()

	items := normalizeJSON(t, `[
		{"title":"T","name":"N","channel":"C","source":"S","url":"U","link":"L"},
		{"name":"N","source":"S","link":"L"},
		{"message":"M","description":"D"},
		{"title":"","text":"fallback"},
		{"other":"x"},
		"plain",
		5
	]`)

	require.Len(t, items, 7)
	assert.Equal(t, models.DisplayItem{Title: "T", MetaText: "C", URL: "U"}, items[0])
	assert.Equal(t, models.DisplayItem{Title: "N", MetaText: "S", URL: "L"}, items[1])
	assert.Equal(t, models.DisplayItem{Title: "M", MetaText: "D"}, items[2])
	assert.Equal(t, models.DisplayItem{Title: "fallback"}, items[3])
	assert.Equal(t, models.DisplayItem{}, items[4])
	assert.Equal(t, models.DisplayItem{Title: "plain"}, items[5])
	assert.Equal(t, models.DisplayItem{}, items[6])
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"result":[{"title":"A","channel":"c","link":"https://a"},{"name":"B"}]}`,
		`{"answer":"hello"}`,
		`{"foo":"bar"}`,
		`[{"text":"x","source":"s"},{"description":"only meta"}]`,
	}

	for _, body := range bodies {
		first := normalizeJSON(t, body)

		data, err := json.Marshal(first)
		require.NoError(t, err)

		second := normalizeJSON(t, string(data))
		assert.Equal(t, first, second, body)
	}
}

func TestFieldRules_InIsolation(t *testing.T) {
	t.Parallel()

	element := map[string]any{"name": "n", "text": "t", "link": "l", "description": "d"}

	var got []string
	for _, rule := range normalizer.TitleRules {
		if s, ok := rule(element); ok {
			got = append(got, s)
		}
	}
	assert.Equal(t, []string{"n", "t"}, got)

	_, ok := normalizer.URLRules[0](element)
	assert.False(t, ok)
	s, ok := normalizer.URLRules[1](element)
	assert.True(t, ok)
	assert.Equal(t, "l", s)
}

func TestPayloadRules_InIsolation(t *testing.T) {
	t.Parallel()

	payload := map[string]any{"items": []any{"x"}}

	matched := -1
	for i, rule := range normalizer.PayloadRules {
		if _, ok := rule(payload); ok {
			matched = i
			break
		}
	}
	assert.Equal(t, 2, matched, "items is the third rule")

	// the serializing fallback matches any object
	last := normalizer.PayloadRules[len(normalizer.PayloadRules)-1]
	_, ok := last(map[string]any{})
	assert.True(t, ok)
	_, ok = last("scalar")
	assert.False(t, ok)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	_, err := normalizer.Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = normalizer.Decode([]byte(`{"a":1} trailing`))
	assert.Error(t, err)

	_, err = normalizer.Decode([]byte(""))
	assert.Error(t, err)

	payload, err := normalizer.Decode([]byte(" {\"a\":1.50}\n"))
	require.NoError(t, err)
	assert.Equal(t, json.Number("1.50"), payload.(map[string]any)["a"])
}
