package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			reply: `{"title":"A"}`,
			want:  `{"title":"A"}`,
		},
		{
			name:  "prose around payload",
			reply: "Here is the metadata you asked for:\n{\"title\":\"A\",\"authors\":[\"B\"]}\nLet me know if you need more.",
			want:  `{"title":"A","authors":["B"]}`,
		},
		{
			name:  "nested objects keep outer braces",
			reply: "```json\n{\"a\":{\"b\":1}}\n```",
			want:  `{"a":{"b":1}}`,
		},
		{
			name:    "no braces",
			reply:   "I could not read the article.",
			wantErr: true,
		},
		{
			name:    "closing brace before opening",
			reply:   "} oops {",
			wantErr: true,
		},
		{
			name:    "malformed payload",
			reply:   `{"title": "A",}`,
			wantErr: true,
		},
		{
			name:    "braces in trailing commentary",
			reply:   `{"title":"A"} note: {see above}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	fields, err := DecodeJSON("Sure! {\"title\":\"A\",\"publication_year\":2021}")
	require.NoError(t, err)
	assert.JSONEq(t, `"A"`, string(fields["title"]))
	assert.JSONEq(t, `2021`, string(fields["publication_year"]))

	_, err = DecodeJSON(`[{"a":1}]`)
	require.NoError(t, err, "first { to last } is an object")

	_, err = DecodeJSON(`no json here`)
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestDecodeEntities(t *testing.T) {
	assert.Equal(t, "Math & Memory", DecodeEntities("Math &amp; Memory"))
	assert.Equal(t, "children's", DecodeEntities("children&#39;s"))
	assert.Equal(t, []string{"O'Brien", "Núñez"}, DecodeAll([]string{"O&#x27;Brien", "N&uacute;&ntilde;ez"}))
}

func TestPricingCost(t *testing.T) {
	pricing := Pricing{
		"micro":   {InputPer1K: 0.000035, OutputPer1K: 0.00014},
		"premier": {InputPer1K: 0.0025, OutputPer1K: 0.0125},
	}

	assert.InDelta(t, 2000.0/1000*0.000035+500.0/1000*0.00014, pricing.Cost("micro", 2000, 500), 1e-12)
	assert.InDelta(t, 0.0025+0.0125, pricing.Cost("premier:latest", 1000, 1000), 1e-12)
	assert.Zero(t, pricing.Cost("local", 1000, 1000))

	usage := pricing.Usage(Generation{Model: "micro", InputTokens: 1000, OutputTokens: 1000})
	assert.Equal(t, "micro", usage.Model)
	assert.InDelta(t, 0.000175, usage.Cost, 1e-12)
}
