package transtore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}

func TestNormalizeImages(t *testing.T) {
	t.Run("numbers by sorted name and collapses jpeg", func(t *testing.T) {
		files, renames := normalizeImages(map[string][]byte{
			"chart.png":   pngHeader,
			"aerial.jpeg": jpegHeader,
		})

		require.Len(t, files, 2)
		assert.Equal(t, jpegHeader, files["fig_1.jpg"])
		assert.Equal(t, pngHeader, files["fig_2.png"])
		assert.Equal(t, map[string]string{
			"aerial.jpeg": "fig_1.jpg",
			"chart.png":   "fig_2.png",
		}, renames)
	})

	t.Run("sniffs unknown extensions", func(t *testing.T) {
		files, _ := normalizeImages(map[string][]byte{
			"blob": pngHeader,
		})
		require.Len(t, files, 1)
		assert.Contains(t, files, "fig_1.png")
	})

	t.Run("strips directory prefixes from rename keys", func(t *testing.T) {
		_, renames := normalizeImages(map[string][]byte{
			"images/photo.jpeg": jpegHeader,
		})
		assert.Equal(t, "fig_1.jpg", renames["photo.jpeg"])
	})

	t.Run("empty input", func(t *testing.T) {
		files, renames := normalizeImages(nil)
		assert.Nil(t, files)
		assert.Nil(t, renames)
	})
}

func TestSniffImageExt(t *testing.T) {
	assert.Equal(t, ".png", sniffImageExt(pngHeader))
	assert.Equal(t, ".jpg", sniffImageExt(jpegHeader))
	assert.Equal(t, ".gif", sniffImageExt([]byte("GIF89a......")))
	assert.Equal(t, ".png", sniffImageExt([]byte("plain text")))
}

func TestRewriteImageRefs(t *testing.T) {
	renames := map[string]string{"photo.jpeg": "fig_1.jpg"}

	t.Run("bare name", func(t *testing.T) {
		got := rewriteImageRefs("see ![caption](photo.jpeg) here", renames)
		assert.Equal(t, "see ![caption](images/fig_1.jpg) here", got)
	})

	t.Run("directory prefix", func(t *testing.T) {
		got := rewriteImageRefs("![c](./images/photo.jpeg)", renames)
		assert.Equal(t, "![c](images/fig_1.jpg)", got)
	})

	t.Run("title dropped", func(t *testing.T) {
		got := rewriteImageRefs(`![c](photo.jpeg "Figure 1")`, renames)
		assert.Equal(t, "![c](images/fig_1.jpg)", got)
	})

	t.Run("unknown image untouched", func(t *testing.T) {
		md := "![c](other.png)"
		assert.Equal(t, md, rewriteImageRefs(md, renames))
	})

	t.Run("no renames", func(t *testing.T) {
		md := "![c](photo.jpeg)"
		assert.Equal(t, md, rewriteImageRefs(md, nil))
	})

	t.Run("empty alt preserved", func(t *testing.T) {
		got := rewriteImageRefs("![](photo.jpeg)", renames)
		assert.Equal(t, "![](images/fig_1.jpg)", got)
	})
}
