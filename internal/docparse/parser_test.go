package docparse

import (
	"context"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPDFParser_InvalidBytes(t *testing.T) {
	parser := NewPDFParser()

	_, err := parser.Parse(context.Background(), "bad.pdf", []byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestAssembleLines_ReadingOrder(t *testing.T) {
	parser := NewPDFParser()

	// Glyph runs delivered out of order; Y grows upward in PDF space.
	texts := []pdf.Text{
		{S: "world", X: 120, Y: 700, W: 30, FontSize: 10, Font: "Times"},
		{S: "Second line", X: 72, Y: 680, W: 60, FontSize: 10, Font: "Times"},
		{S: "Hello", X: 72, Y: 700, W: 28, FontSize: 10, Font: "Times"},
	}

	lines := parser.assembleLines(texts)
	require.Len(t, lines, 2)
	assert.Equal(t, "Hello world", lines[0].text)
	assert.Equal(t, "Second line", lines[1].text)
}

func TestAssembleLines_BaselineJitter(t *testing.T) {
	parser := NewPDFParser()

	// 1pt of baseline jitter still counts as one line.
	texts := []pdf.Text{
		{S: "alpha", X: 72, Y: 500.0, W: 25, FontSize: 10},
		{S: "beta", X: 100, Y: 500.9, W: 20, FontSize: 10},
	}

	lines := parser.assembleLines(texts)
	require.Len(t, lines, 1)
	assert.Equal(t, "alpha beta", lines[0].text)
}

func TestAssembleLines_BoldDetection(t *testing.T) {
	parser := NewPDFParser()

	lines := parser.assembleLines([]pdf.Text{
		{S: "Introduction", X: 72, Y: 700, W: 80, FontSize: 14, Font: "Times-Bold"},
	})
	require.Len(t, lines, 1)
	assert.True(t, lines[0].bold)
}

func TestGroupBlocks_ParagraphsAndGaps(t *testing.T) {
	lines := []textLine{
		{y: 700, fontSize: 10, text: "First paragraph starts here and"},
		{y: 688, fontSize: 10, text: "continues on the next line."},
		// Large gap starts a new block.
		{y: 600, fontSize: 10, text: "Second paragraph."},
		// Font size change starts a new block.
		{y: 588, fontSize: 14, text: "A Heading"},
	}

	blocks, tables := groupBlocks(lines)
	require.Empty(t, tables)
	require.Len(t, blocks, 3)
	assert.Equal(t, "First paragraph starts here and continues on the next line.", blocks[0].Text)
	assert.Equal(t, "Second paragraph.", blocks[1].Text)
	assert.Equal(t, "A Heading", blocks[2].Text)
	assert.Equal(t, 14.0, blocks[2].FontSize)
}

func TestGroupBlocks_ExtractsPipeTables(t *testing.T) {
	lines := []textLine{
		{y: 700, fontSize: 10, text: "Table 1 shows the results."},
		{y: 688, fontSize: 9, text: "| Model | Acc |"},
		{y: 676, fontSize: 9, text: "|---|---|"},
		{y: 664, fontSize: 9, text: "| BERT | 88 |"},
		{y: 640, fontSize: 10, text: "Discussion follows."},
	}

	blocks, tables := groupBlocks(lines)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Model", "Acc"}, tables[0].Header)
	assert.Equal(t, [][]string{{"BERT", "88"}}, tables[0].Rows)

	require.Len(t, blocks, 2)
	assert.Equal(t, "Table 1 shows the results.", blocks[0].Text)
	assert.Equal(t, "Discussion follows.", blocks[1].Text)
}

func TestGroupBlocks_LonePipeLineStaysText(t *testing.T) {
	lines := []textLine{
		{y: 700, fontSize: 10, text: "| solitary |"},
	}

	blocks, tables := groupBlocks(lines)
	assert.Empty(t, tables)
	require.Len(t, blocks, 1)
	assert.Equal(t, "| solitary |", blocks[0].Text)
}
