package extract

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCount(t *testing.T) {
	tests := []struct {
		title string
		want  int
		ok    bool
	}{
		{"Pampers Baby Dry Size 3 (198 Count)", 198, true},
		{"Huggies Little Movers Diapers, Size 4, 140 ct", 140, true},
		{"Pampers Swaddlers Diapers Size 1 96-Pack", 96, true},
		{"Couches Pampers Cruisers 360, taille 5, 128 unités", 128, true},
		{"Kirkland Signature Diapers Size 3, 198", 198, true},
		{"Honest Diapers Size 2 (132)", 132, true},
		{"Hello Bello Diapers - 70", 70, true},
		{"Luvs Diapers Size 4, 2 pack - 72", 72, true},
		{"Seventh Generation Diapers 156 diapers size 5", 156, true},
		{"Parent's Choice Diapers, box of 120, Size 2", 120, true},
		{"Huggies Snug & Dry Size 1, 204 one month supply", 204, true},
		{"Pampers Baby Dry Giant Pack 124 Size 4", 124, true},
		{"Huggies Overnites Size 6 Diapers 58", 58, true},
		{"Pampers Baby Dry Mega Pack Size 5", 144, true},
		{"Huggies Family Pack Diapers Size 4", 144, true},
		{"Pampers Swaddlers Jumbo Pack Size 2", 120, true},
		{"Luvs Super Pack Diapers Size 3", 96, true},
		{"Pampers Swaddlers Newborn Diapers", 84, true},
		{"Pampers Diapers", 0, false},
		{"Huggies Size 3", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := ExtractCount(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCount_ExplicitCountAcrossRange(t *testing.T) {
	for _, unit := range []string{"Count", "ct", "pack", "Pieces"} {
		for n := MinCount; n <= MaxCount; n += 17 {
			title := fmt.Sprintf("Brand Diapers Size 3, %d %s", n, unit)
			got, ok := ExtractCount(title)
			assert.True(t, ok, title)
			assert.Equal(t, n, got, title)
		}
	}
}

func TestExtractCount_OutOfRangeSkipsToNextPattern(t *testing.T) {
	// "2 pack" is out of range, the parenthetical count wins.
	got, ok := ExtractCount("Pampers Baby Dry 2 pack (180)")
	assert.True(t, ok)
	assert.Equal(t, 180, got)

	// 500 is out of range everywhere; the bare number fallback needs [20, 300].
	_, ok = ExtractCount("Pampers Diapers 500 count")
	assert.False(t, ok)
}

func TestExtractCount_BareNumberFallbackIgnoresSmall(t *testing.T) {
	got, ok := ExtractCount("Huggies Diapers 12 Size 3 88")
	assert.True(t, ok)
	assert.Equal(t, 88, got)
}

func TestExtractCount_KeywordDefaultsOnlyWithoutCount(t *testing.T) {
	got, ok := ExtractCount("Pampers Mega Pack Diapers Size 3, 104 Count")
	assert.True(t, ok)
	assert.Equal(t, 104, got)
}
